package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show an item with its comments and dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID := args[0]
		e := openEngine()
		defer e.Close()
		ctx := context.Background()

		item, err := e.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		comments, err := e.GetComments(ctx, itemID)
		if err != nil {
			return err
		}
		deps, err := e.GetDependencies(ctx, itemID)
		if err != nil {
			return err
		}

		type shown struct {
			Item         any `json:"item"`
			Comments     any `json:"comments"`
			Dependencies any `json:"dependencies"`
		}
		out := shown{Item: item, Comments: comments, Dependencies: deps}

		emit(out, func() {
			fmt.Printf("%s  [%s/%s]  %s\n", item.ItemID, item.Kind, item.State, item.Title)
			if item.Description != "" {
				fmt.Printf("\n%s\n", item.Description)
			}
			if len(item.Labels) > 0 {
				fmt.Printf("labels: %v\n", item.Labels)
			}
			if len(item.Assignees) > 0 {
				fmt.Printf("assignees: %v\n", item.Assignees)
			}
			for _, d := range deps {
				fmt.Printf("depends on %s (%s)\n", d.DependsOnItemID, d.LinkType)
			}
			for _, c := range comments {
				fmt.Printf("\n[%s] %s\n", c.Author, c.Body)
			}
		})
		return nil
	},
}
