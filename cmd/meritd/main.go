// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command meritd is the node daemon: it loads configuration, opens the
// referral graph/ANV/coin-age persistent stores for the selected network,
// and runs until interrupted. It does not yet speak any wire protocol to
// peers (P2P framing beyond the compact-block object layout is out of
// scope); it exists to prove out the consensus core's wiring end to end.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	logpkg "github.com/meritfoundation/merit/log"
	"github.com/meritfoundation/merit/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := node.LoadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logpkg.SetLevelAll(cfg.DebugLevel)
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o700); err != nil {
			return fmt.Errorf("meritd: creating log directory: %w", err)
		}
		logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "meritd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("meritd: opening log file: %w", err)
		}
		defer logFile.Close()
		logpkg.SetOutput(logFile)
	}

	params := node.ParamsForConfig(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("meritd: creating data directory: %w", err)
	}

	ctx, err := node.New(filepath.Join(cfg.DataDir, params.Name), params)
	if err != nil {
		return fmt.Errorf("meritd: opening node context: %w", err)
	}
	defer ctx.Close()

	logpkg.Node.Infof("meritd: running on %s, data directory %s", params.Name, cfg.DataDir)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	logpkg.Node.Infof("meritd: shutdown signal received, closing down")
	return nil
}
