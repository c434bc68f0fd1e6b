package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "runbox",
	Short: "runbox - interactive code execution backend",
	Long: `runbox is the backend for an interactive code playground.

It runs code in ~17 languages, locally under a pseudo-terminal or
remotely through the Piston API, and streams output live over a
websocket session.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
