package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/tsjson"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a TSJSON event stream (stdin if no file given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		events, err := tsjson.ParseAll(string(content))
		if err != nil {
			return err
		}

		e := openEngine()
		defer e.Close()

		imported, err := e.ImportEvents(context.Background(), events)
		if err != nil {
			return err
		}
		emit(map[string]int{"imported": imported, "skipped": len(events) - imported}, func() {
			fmt.Printf("Imported %d events (%d already present)\n", imported, len(events)-imported)
		})
		return nil
	},
}
