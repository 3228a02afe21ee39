package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var commentCmd = &cobra.Command{
	Use:   "comment <item-id> <body>",
	Short: "Add a comment to an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, body := args[0], args[1]
		e := openEngine()
		defer e.Close()

		data, err := event.NewComment(body, nil)
		if err != nil {
			return err
		}
		ev, err := e.Append(context.Background(), engine.Draft{
			Agent: resolveAgent(), EventType: event.ItemComment, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(map[string]string{"item_id": itemID, "event_hash": ev.EventHash}, func() {
			fmt.Printf("Commented on %s\n", itemID)
		})
		return nil
	},
}
