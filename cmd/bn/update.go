package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var updateCmd = &cobra.Command{
	Use:   "update <item-id> <field> <value>",
	Short: "Patch a single scalar field on an item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, field, value := args[0], args[1], args[2]
		e := openEngine()
		defer e.Close()

		data, err := event.NewUpdate(field, value, nil)
		if err != nil {
			return err
		}
		ev, err := e.Append(context.Background(), engine.Draft{
			Agent: resolveAgent(), EventType: event.ItemUpdate, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(map[string]string{"item_id": itemID, "event_hash": ev.EventHash}, func() {
			fmt.Printf("Updated %s: %s = %s\n", itemID, field, value)
		})
		return nil
	},
}
