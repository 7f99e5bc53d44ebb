// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the spaces CLI.
//
// Usage:
//
//	spaces checkout --name <dir> --script <path>[,<path>...]
//	spaces sync
//	spaces run [--target <rule>] [-- <args>...]
//	spaces evaluate [--target <rule>]
//	spaces list
//	spaces store fix
//	spaces store info
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/spaces/pkg/config"
	"github.com/kraklabs/spaces/pkg/metrics"
)

// version is set via ldflags during release builds.
var version = "dev"

// globalFlags holds flags recognized before the subcommand name.
type globalFlags struct {
	JSON    bool
	NoColor bool
	Quiet   bool
	Config  string
}

func main() {
	var (
		jsonOutput = flag.Bool("json", false, "Output in JSON format")
		noColor    = flag.Bool("no-color", false, "Disable color output")
		quiet      = flag.BoolP("quiet", "q", false, "Suppress progress output")
		configPath = flag.StringP("config", "c", "", "Path to ~/.spaces/config.yaml")
	)
	flag.SetInterspersed(false)
	flag.Usage = printUsage

	flag.Parse()

	globals := globalFlags{JSON: *jsonOutput, NoColor: *noColor, Quiet: *quiet || *jsonOutput, Config: *configPath}
	initColors(globals.NoColor)

	if cfg, err := config.Load(globals.Config); err == nil && cfg.MetricsAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		metrics.Serve(ctx, cfg.MetricsAddr)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command, cmdArgs := args[0], args[1:]

	var code int
	switch command {
	case "checkout":
		code = runCheckout(cmdArgs, globals)
	case "sync":
		code = runSync(cmdArgs, globals)
	case "run":
		code = runRun(cmdArgs, globals)
	case "evaluate":
		code = runEvaluate(cmdArgs, globals)
	case "list":
		code = runList(cmdArgs, globals)
	case "store":
		code = runStore(cmdArgs, globals)
	case "help", "--help", "-h":
		flag.Usage()
		code = 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flag.Usage()
		code = 1
	}
	os.Exit(code)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `spaces - workspace orchestration and build engine

Usage:
  spaces checkout --name <dir> --script <path>[,<path>...]
  spaces sync
  spaces run [--target <rule>] [-- <args>...]
  spaces evaluate [--target <rule>]
  spaces list
  spaces store fix
  spaces store info

Global Options:
  --json            Output in JSON format
  --no-color        Disable color output
  -q, --quiet       Suppress progress output
  -c, --config      Path to ~/.spaces/config.yaml
`)
}

func fail(format string, args ...any) int {
	colorError.Fprintf(os.Stderr, "error: ")
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}
