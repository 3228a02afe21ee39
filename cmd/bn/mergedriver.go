package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/unionmerge"
)

// mergeDriverCmd implements git's merge-driver contract: git invokes it as
// `bn merge-driver %O %A %B`, where %A (ours) must be overwritten in place
// with the merge result (spec §6.2 merge(base, ours, theirs)).
var mergeDriverCmd = &cobra.Command{
	Use:    "merge-driver <base> <ours> <theirs>",
	Short:  "Git merge driver for .bones/events/*.events shard files",
	Hidden: true,
	Args:   cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		basePath, oursPath, theirsPath := args[0], args[1], args[2]
		result, err := unionmerge.MergeFiles(basePath, oursPath, theirsPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "bn merge-driver: %d local, %d remote, %d duplicates skipped\n",
			result.NewLocal, result.NewRemote, result.DuplicatesSkipped)
		return nil
	},
}
