package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over item titles, descriptions, and labels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		e := openEngine()
		defer e.Close()

		hits, err := e.SearchFTS(context.Background(), query, searchLimit)
		if err != nil {
			return err
		}
		emit(hits, func() {
			for _, h := range hits {
				fmt.Printf("%s  (rank %.3f)\n", h.ItemID, h.Rank)
			}
		})
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
}
