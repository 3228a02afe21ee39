package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize item counts by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := openEngine()
		defer e.Close()
		ctx := context.Background()

		counts := map[string]int{}
		for _, phase := range []string{"open", "doing", "done", "archived"} {
			items, err := e.ListItems(ctx, store.ListItemsFilter{State: phase})
			if err != nil {
				return err
			}
			counts[phase] = len(items)
		}
		all, err := e.ListItems(ctx, store.ListItemsFilter{})
		if err != nil {
			return err
		}
		counts["total"] = len(all)

		emit(counts, func() {
			for _, phase := range []string{"open", "doing", "done", "archived", "total"} {
				fmt.Printf("%-10s %d\n", phase, counts[phase])
			}
		})
		return nil
	},
}
