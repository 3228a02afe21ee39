// Command bn is the Bones CLI: a thin cobra front end over the engine
// package (spec §6 "CLI surface").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/config"
)

var (
	flagAgent string
	flagJSON  bool
	flagDB    string
)

var rootCmd = &cobra.Command{
	Use:   "bn",
	Short: "Bones: a local-first, git-versioned work-item tracker",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			return nil
		}
		return config.Initialize()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAgent, "agent", "", "override writer identity (default: git config user.name, then hostname)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON instead of human-readable text")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "accepted but not used: the projection database is always .bones/index.db")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(unassignCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(mergeDriverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
