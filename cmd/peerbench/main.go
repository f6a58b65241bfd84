// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"grimm.is/peerbench/cmd"
	"grimm.is/peerbench/internal/errors"
	"grimm.is/peerbench/internal/logging"
)

func main() {
	// Busybox-style dispatch based on argv[0]
	name := filepath.Base(os.Args[0])

	switch {
	case strings.HasPrefix(name, "peerbench-") && name != "peerbench-":
		os.Exit(dispatch(strings.TrimPrefix(name, "peerbench-"), os.Args[1:]))
	case len(os.Args) > 1:
		os.Exit(dispatch(os.Args[1], os.Args[2:]))
	default:
		help()
		os.Exit(1)
	}
}

func dispatch(sub string, args []string) int {
	var err error
	switch sub {
	case "latency", "lat":
		err = cmd.RunLatency(args)
	case "fuzz":
		err = cmd.RunFuzz(args)
	case "serve":
		err = cmd.RunServe(args)
	case "validate":
		err = cmd.RunValidate(args)
	case "help", "-h", "--help":
		help()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", sub)
		help()
		return 1
	}
	if err == nil {
		return 0
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if errors.IsKind(err, errors.KindToolFailure) {
		fmt.Fprintln(os.Stderr, err)
	} else {
		logging.Debug("run aborted", errors.Fields(err)...)
		fmt.Fprintf(os.Stderr, "%s error (%s): %v\n", sub, errors.GetKind(err), err)
	}
	return 1
}

func help() {
	fmt.Fprintln(os.Stderr, `Usage: peerbench <command> [flags]

Commands:
  latency    Run a latency tool against a peer across a variant matrix
  fuzz       Run a fuzzer under a throwaway user and classify the kernel log
  serve      Serve the command channel on a peer node
  validate   Check a configuration file, or print the defaults

Run 'peerbench <command> -h' for command flags.`)
}
