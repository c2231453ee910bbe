// Package log sets up the per-subsystem loggers shared across the node:
// GRPH (referral graph), CGSE (ANV/CGS engine), LOTT (lotteries), POW
// (cuckoo solver/verifier), CMPT (compact blocks), CHAN (chain state), NODE
// (top-level wiring).
// Subsystems log through the package-level loggers declared below, all
// carved out of one shared Backend, the same per-subsystem tag style exccd's
// database, blockchain, and peer packages use.
package log

import (
	"io"
	"os"

	"github.com/decred/slog"
)

// Backend is the single slog.Backend every subsystem logger is carved out
// of, so one log level change or one io.Writer swap reaches everywhere.
var Backend = slog.NewBackend(os.Stdout)

// subsystem tags, kept short and fixed-width to line up in log output the
// way exccd's own subsystem tags do (BMGR, CHAN, RPCS, ...).
const (
	SubsystemGraph   = "GRPH"
	SubsystemCGS     = "CGSE"
	SubsystemLottery = "LOTT"
	SubsystemPoW     = "POW "
	SubsystemCompact = "CMPT"
	SubsystemNode    = "NODE"
	SubsystemChain   = "CHAN"
)

var subsystems = []string{
	SubsystemGraph,
	SubsystemCGS,
	SubsystemLottery,
	SubsystemPoW,
	SubsystemCompact,
	SubsystemNode,
	SubsystemChain,
}

var loggers = newLoggers()

func newLoggers() map[string]slog.Logger {
	m := make(map[string]slog.Logger, len(subsystems))
	for _, tag := range subsystems {
		m[tag] = Backend.Logger(tag)
	}
	return m
}

// Logger returns the shared logger for tag, creating it against Backend on
// first use. Callers outside this package should prefer the package-level
// Graph/CGS/Lottery/PoW/Compact/Node vars below; Logger exists for code
// that only has the subsystem tag string (e.g. SetLogLevel).
func Logger(tag string) slog.Logger {
	if l, ok := loggers[tag]; ok {
		return l
	}
	l := Backend.Logger(tag)
	loggers[tag] = l
	return l
}

// Graph, CGS, Lottery, PoW, Compact, Chain, and Node are the shared
// per-subsystem loggers that subsystem code calls directly; SetOutput
// replaces all of them.
var (
	Graph   = Logger(SubsystemGraph)
	CGS     = Logger(SubsystemCGS)
	Lottery = Logger(SubsystemLottery)
	PoW     = Logger(SubsystemPoW)
	Compact = Logger(SubsystemCompact)
	Node    = Logger(SubsystemNode)
	Chain   = Logger(SubsystemChain)
)

// SetLevel parses level (e.g. "debug", "info", "warn") and applies it to a
// single subsystem's logger. An unrecognised tag is a no-op, matching
// exccd's own setLogLevel behaviour for unknown subsystems supplied via
// --debuglevel.
func SetLevel(tag, level string) {
	l, ok := loggers[tag]
	if !ok {
		return
	}
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return
	}
	l.SetLevel(lvl)
}

// SetLevelAll applies level to every subsystem logger — the "--debuglevel
// info" form that sets a single global level.
func SetLevelAll(level string) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return
	}
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}

// SetOutput redirects every subsystem's log output, rebuilding Backend and
// all cached loggers against w. Used by cmd/meritd to point logging at a
// rotating log file instead of stdout.
func SetOutput(w io.Writer) {
	Backend = slog.NewBackend(w)
	loggers = newLoggers()
	Graph = loggers[SubsystemGraph]
	CGS = loggers[SubsystemCGS]
	Lottery = loggers[SubsystemLottery]
	PoW = loggers[SubsystemPoW]
	Compact = loggers[SubsystemCompact]
	Node = loggers[SubsystemNode]
	Chain = loggers[SubsystemChain]
}
