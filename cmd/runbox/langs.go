package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/language"
)

var langsCmd = &cobra.Command{
	Use:   "langs",
	Short: "List supported languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := language.Load()
		if err != nil {
			return err
		}
		for _, name := range registry.Names() {
			desc, _ := registry.Lookup(name)
			remote := "local only"
			if desc.Piston != nil {
				remote = fmt.Sprintf("remote %s %s", desc.Piston.Language, desc.Piston.Version)
			}
			fmt.Printf("%-12s %-16s %s\n", name, desc.File, remote)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(langsCmd)
}
