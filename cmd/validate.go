// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"

	"grimm.is/peerbench/internal/config"
	"grimm.is/peerbench/internal/errors"
)

// RunValidate implements 'peerbench validate'.
func RunValidate(args []string) error {
	return DefaultEnv().Validate(args)
}

// Validate checks a configuration file for one mode, or prints the default
// configuration.
func (e *Env) Validate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(e.Stderr)
	var configPath string
	configFlag(fs, &configPath)
	mode := fs.String("mode", "latency", "What to validate for: latency, fuzz, serve")
	printDefaults := fs.Bool("print-defaults", false, "Print the default configuration as HCL and exit")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "invalid arguments")
	}

	if *printDefaults {
		_, err := e.Stdout.Write(config.EncodeHCL(config.Default()))
		return err
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	var errs config.ValidationErrors
	switch *mode {
	case "latency":
		errs = cfg.ValidateLatency()
	case "fuzz":
		errs = cfg.ValidateFuzz()
	case "serve":
		errs = cfg.ValidateServe()
	default:
		return errors.Errorf(errors.KindConfiguration, "unknown mode %q", *mode)
	}

	for _, v := range errs {
		severity := v.Severity
		if severity == "" {
			severity = "error"
		}
		fmt.Fprintf(e.Stdout, "%-7s %s: %s\n", severity, v.Field, v.Message)
	}
	if err := errs.Err(); err != nil {
		return err
	}
	fmt.Fprintf(e.Stdout, "%s: valid for %s\n", configPath, *mode)
	return nil
}
