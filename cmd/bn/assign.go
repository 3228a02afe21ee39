package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var assignCmd = &cobra.Command{
	Use:   "assign <item-id> <agent>",
	Short: "Assign an agent to an item",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssign("assign"),
}

var unassignCmd = &cobra.Command{
	Use:   "unassign <item-id> <agent>",
	Short: "Remove an agent's assignment from an item",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssign("unassign"),
}

func runAssign(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		itemID, agent := args[0], args[1]
		e := openEngine()
		defer e.Close()

		data, err := event.NewAssign(agent, action, nil)
		if err != nil {
			return err
		}
		ev, err := e.Append(context.Background(), engine.Draft{
			Agent: resolveAgent(), EventType: event.ItemAssign, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(map[string]string{"item_id": itemID, "event_hash": ev.EventHash}, func() {
			fmt.Printf("%sed %s: %s\n", action, itemID, agent)
		})
		return nil
	}
}

