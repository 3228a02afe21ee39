package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/untoldecay/bones/internal/config"
	"github.com/untoldecay/bones/internal/engine"
)

var flagSkipMergeDriver bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .bones in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			fmt.Fprintln(os.Stderr, "warning: failed to load config, continuing with defaults:", err)
		}
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		e, err := engine.Open(cwd)
		if err != nil {
			return err
		}
		defer e.Close()

		if !flagSkipMergeDriver {
			if err := installMergeDriver(cwd); err != nil {
				fmt.Fprintln(os.Stderr, "warning: failed to install git merge driver:", err)
			}
		}

		emit(map[string]string{"repo_root": cwd, "bones_dir": e.BonesDir}, func() {
			fmt.Printf("Initialized Bones repository in %s\n", e.BonesDir)
		})
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagSkipMergeDriver, "skip-merge-driver", false, "don't configure the git merge driver for .bones/events/*.events")
}

// installMergeDriver configures a git merge driver that calls "bn
// merge-driver %O %A %B" for every shard file, and adds the matching
// .gitattributes entry — the CLI-side half of spec §6.2's merge(base,
// ours, theirs) contract.
func installMergeDriver(repoRoot string) error {
	if err := exec.Command("git", "-C", repoRoot, "config", "merge.bones.name", "Bones event log union-merge").Run(); err != nil {
		return err
	}
	if err := exec.Command("git", "-C", repoRoot, "config", "merge.bones.driver", "bn merge-driver %O %A %B").Run(); err != nil {
		return err
	}

	attrPath := repoRoot + "/.gitattributes"
	line := ".bones/events/*.events merge=bones\n"
	existing, _ := os.ReadFile(attrPath)
	if !contains(string(existing), line) {
		f, err := os.OpenFile(attrPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := f.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (haystack == needle || indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
