// Package config handles the parsing and validation of application configuration
// from command-line arguments, environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/woozymasta/overbyte/internal/vars"
)

// loadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// parse fills cfg from args and the environment. It reports whether help was
// requested so callers can exit cleanly.
func parse(cfg any, args []string) (help bool, err error) {
	parser := flags.NewParser(cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// exit terminates the process for a failed or finished parse.
func exit(help bool, version bool, err error) {
	switch {
	case err != nil:
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			// go-flags already printed its own errors.
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	case help:
		os.Exit(0)
	case version:
		vars.Print()
		os.Exit(0)
	}
}
