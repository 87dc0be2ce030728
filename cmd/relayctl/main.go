// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command relayctl administers a relaybot deployment. It serves the admin
// API and edits the preference store: protected sources, per-user
// destinations and preference resets.
//
// Usage:
//
//	relayctl [--config config.yaml] <command> [arguments]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "relayctl",
		Usage:   "Administer the relaybot transfer pipeline",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Tag, Commit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file",
				Value:   "config.yaml",
				EnvVars: []string{"RELAYBOT_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "no-update",
				Usage: "Don't write the upgraded config back to disk",
			},
		},
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			serveCommand(),
			lockCommand(),
			protectedCommand(),
			destCommand(),
			resetCommand(),
			prefCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
