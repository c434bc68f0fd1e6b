package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/config"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/pkgcache"
	"github.com/michaelbrown/runbox/internal/runner"
)

var langFlag string

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a source file locally, streaming output",
	Long: `Run a source file on this machine under a pseudo-terminal. The
language is inferred from the file extension unless --lang is given.
Stdin is forwarded to the program, so interactive code works.

Examples:
  runbox run main.py
  runbox run --lang javascript script.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&langFlag, "lang", "", "Language (overrides extension inference)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry, err := language.Load()
	if err != nil {
		return err
	}

	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var desc *language.Descriptor
	if langFlag != "" {
		desc, err = registry.Lookup(langFlag)
	} else {
		desc, err = registry.LookupByExtension(filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	local := &runner.Local{
		WorkspaceRoot: cfg.Execution.WorkspaceRoot,
		Python:        pkgcache.NewPythonCache(filepath.Join(cfg.Execution.UserLibsDir, "python")),
		Java:          pkgcache.NewJavaCache(filepath.Join(cfg.Execution.UserLibsDir, "java")),
	}

	sess := runner.NewStandalone("cli")
	defer sess.Close()

	done := make(chan int, 1)
	emit := func(ev runner.Event) {
		switch ev.Type {
		case runner.EventOutput:
			fmt.Print(ev.Data)
		case runner.EventError:
			fmt.Fprintln(os.Stderr, ev.Data)
		case runner.EventComplete:
			code := 0
			if ev.ExitCode != nil {
				code = *ev.ExitCode
			}
			done <- code
		}
	}

	// Forward our stdin to the program, line by line.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := sess.Write(scanner.Text() + "\r"); err != nil {
				return
			}
		}
	}()

	local.Run(context.Background(), sess, desc, string(src), filepath.Base(path), emit)

	exitCode := <-done
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
