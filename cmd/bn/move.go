package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var (
	moveReason string
	moveReopen bool
)

var moveCmd = &cobra.Command{
	Use:   "move <item-id> <open|doing|done|archived>",
	Short: "Transition an item's lifecycle phase",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, target := args[0], args[1]
		e := openEngine()
		defer e.Close()

		data, err := event.NewMove(target, moveReason, moveReopen, nil)
		if err != nil {
			return err
		}
		ev, err := e.Append(context.Background(), engine.Draft{
			Agent: resolveAgent(), EventType: event.ItemMove, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(map[string]string{"item_id": itemID, "event_hash": ev.EventHash}, func() {
			fmt.Printf("Moved %s to %s\n", itemID, target)
		})
		return nil
	},
}

func init() {
	moveCmd.Flags().StringVar(&moveReason, "reason", "", "reason for the transition")
	moveCmd.Flags().BoolVar(&moveReopen, "reopen", false, "force an epoch bump (use when reopening a closed item)")
}
