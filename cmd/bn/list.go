package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/store"
)

var (
	listState    string
	listKind     string
	listLabel    string
	listAssignee string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List items matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := openEngine()
		defer e.Close()

		items, err := e.ListItems(context.Background(), store.ListItemsFilter{
			State: listState, Kind: listKind, Label: listLabel, Assignee: listAssignee,
		})
		if err != nil {
			return err
		}
		emit(items, func() {
			for _, it := range items {
				fmt.Printf("%s  [%s/%s]  %s\n", it.ItemID, it.Kind, it.State, it.Title)
			}
		})
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listState, "state", "", "filter by lifecycle phase")
	listCmd.Flags().StringVar(&listKind, "kind", "", "filter by kind")
	listCmd.Flags().StringVar(&listLabel, "label", "", "filter by label")
	listCmd.Flags().StringVar(&listAssignee, "assignee", "", "filter by assignee")
}
