package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/tsjson"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the full, replay-ordered event log as TSJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := openEngine()
		defer e.Close()

		lines, err := e.ReplayLines()
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		fmt.Fprintln(out, tsjson.ShardHeader)
		fmt.Fprintln(out, tsjson.FieldComment)
		for _, le := range lines {
			line, err := tsjson.EmitLine(le.Event)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
}
