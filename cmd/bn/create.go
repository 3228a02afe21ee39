package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var (
	createKind        string
	createSize        string
	createUrgency     string
	createLabels      []string
	createParent      string
	createDescription string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := args[0]
		e := openEngine()
		defer e.Close()

		itemID, err := newItemID()
		if err != nil {
			return err
		}

		data, err := event.NewCreate(title, createKind, map[string]any{
			"size":        createSize,
			"urgency":     createUrgency,
			"labels":      toAnySlice(createLabels),
			"parent":      createParent,
			"description": createDescription,
		}, nil)
		if err != nil {
			return err
		}
		pruneEmpty(data)

		ev, err := e.Append(context.Background(), engine.Draft{
			Agent: resolveAgent(), EventType: event.ItemCreate, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(map[string]string{"item_id": itemID, "event_hash": ev.EventHash}, func() {
			fmt.Printf("Created %s: %s\n", itemID, title)
		})
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createKind, "kind", "task", "item kind")
	createCmd.Flags().StringVar(&createSize, "size", "", "item size")
	createCmd.Flags().StringVar(&createUrgency, "urgency", "", "item urgency")
	createCmd.Flags().StringSliceVar(&createLabels, "label", nil, "labels (repeatable)")
	createCmd.Flags().StringVar(&createParent, "parent", "", "parent item id")
	createCmd.Flags().StringVar(&createDescription, "description", "", "item description")
}

// newItemID generates a "bn-" + 12 lowercase hex character item id, well
// within the 3-16 character window event.ValidItemID enforces.
func newItemID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "bn-" + hex.EncodeToString(buf), nil
}

func toAnySlice(ss []string) []any {
	if len(ss) == 0 {
		return nil
	}
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// pruneEmpty drops zero-value optional fields so item.create payloads stay
// minimal rather than persisting empty strings for every unset flag.
func pruneEmpty(data map[string]any) {
	for k, v := range data {
		if s, ok := v.(string); ok && s == "" {
			delete(data, k)
		}
		if s, ok := v.([]any); ok && len(s) == 0 {
			delete(data, k)
		}
	}
}
