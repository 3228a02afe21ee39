package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var linkType string

var linkCmd = &cobra.Command{
	Use:   "link <item-id> <target-item-id>",
	Short: "Record a dependency edge from item-id to target-item-id",
	Args:  cobra.ExactArgs(2),
	RunE:  runLink(event.ItemLink),
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <item-id> <target-item-id>",
	Short: "Remove a dependency edge from item-id to target-item-id",
	Args:  cobra.ExactArgs(2),
	RunE:  runLink(event.ItemUnlink),
}

func runLink(t event.Type) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		itemID, target := args[0], args[1]
		e := openEngine()
		defer e.Close()

		data, err := event.NewLink(target, linkType, nil)
		if err != nil {
			return err
		}
		ev, err := e.Append(context.Background(), engine.Draft{
			Agent: resolveAgent(), EventType: t, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(map[string]string{"item_id": itemID, "target": target, "event_hash": ev.EventHash}, func() {
			verb := "Linked"
			if t == event.ItemUnlink {
				verb = "Unlinked"
			}
			fmt.Printf("%s %s -> %s (%s)\n", verb, itemID, target, linkType)
		})
		return nil
	}
}

func init() {
	linkCmd.Flags().StringVar(&linkType, "type", "blocks", "dependency link type")
	unlinkCmd.Flags().StringVar(&linkType, "type", "blocks", "dependency link type")
}
