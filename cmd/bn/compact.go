package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/compact"
	"github.com/untoldecay/bones/internal/engine"
	"github.com/untoldecay/bones/internal/event"
)

var compactSummary string

var compactCmd = &cobra.Command{
	Use:   "compact <item-id>",
	Short: "Record a compaction summary for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID := args[0]
		ctx := context.Background()
		e := openEngine()
		defer e.Close()

		summary := compactSummary
		if summary == "" {
			item, err := e.GetItem(ctx, itemID)
			if err != nil {
				return err
			}
			comments, err := e.GetComments(ctx, itemID)
			if err != nil {
				return err
			}
			if s := compact.Select(ctx); s != nil {
				generated, err := s.Summarize(ctx, item, comments)
				if err != nil {
					return fmt.Errorf("generating compaction summary: %w", err)
				}
				summary = generated
			} else {
				return fmt.Errorf("no summary given and no summarizer available: pass --summary or set ANTHROPIC_API_KEY / run an Ollama daemon")
			}
		}

		data, err := event.NewCompact(summary, nil)
		if err != nil {
			return err
		}
		ev, err := e.Append(ctx, engine.Draft{
			Agent: resolveAgent(), EventType: event.ItemCompact, ItemID: itemID, Data: data,
		})
		if err != nil {
			return err
		}
		emit(ev, func() {
			fmt.Printf("%s compacted: %s\n", itemID, summary)
		})
		return nil
	},
}

func init() {
	compactCmd.Flags().StringVar(&compactSummary, "summary", "", "summary text (skips the summarizer)")
}
