// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package node wires together every consensus subsystem into a single
// running instance, and holds the flags-driven Config that selects which
// network it joins. chaincfg parameters, the mempool, the
// referral graph, the ANV/CGS engine, and the coin-age index are all
// threaded through a Context value built at construction time, rather
// than reached for as package globals.
package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "meritd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
)

// Config holds every command-line/config-file option meritd accepts. The
// struct-tag-driven layout mirrors exccd's own top-level config struct.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	RegNet  bool `long:"regnet" description:"Use the regression test network"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network"`

	AmbassadorCutPermilleOverride int64 `long:"ambassadorcutpermille" description:"Override the ambassador pool's per-mille cut of the block subsidy (testing only)"`
}

// defaultConfig returns a Config populated with meritd's defaults, prior to
// flag/config-file parsing.
func defaultConfig() Config {
	return Config{
		ConfigFile: defaultConfigFilename,
		DataDir:    defaultDataDirname,
		LogDir:     defaultLogDirname,
		DebugLevel: defaultLogLevel,
	}
}

// networkCount returns how many of TestNet/RegNet/SimNet are set, used to
// reject a config that selects more than one non-mainnet network at once.
func (c *Config) networkCount() int {
	n := 0
	if c.TestNet {
		n++
	}
	if c.RegNet {
		n++
	}
	if c.SimNet {
		n++
	}
	return n
}

// LoadConfig parses command-line arguments into a Config, applying
// defaults first. It returns the remaining non-flag arguments, matching
// exccd's own LoadConfig contract.
func LoadConfig(args []string) (*Config, []string, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if cfg.networkCount() > 1 {
		return nil, nil, fmt.Errorf("node: testnet, regnet, and simnet are mutually exclusive")
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return &cfg, remaining, nil
}

// cleanAndExpandPath expands a leading ~ to the user's home directory and
// cleans the result, the same helper exccd's own config.go carries.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
