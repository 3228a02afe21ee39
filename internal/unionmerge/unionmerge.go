// Package unionmerge implements the git merge driver payload: a
// deterministic union-merge of two divergent shard event sequences
// (spec §4.H). Grounded on the teacher's vendored internal/merge package
// for the CLI-facing file shape (base/ours/theirs paths in, merged file
// written in place) — the merge body itself is rewritten for event-log
// CRDT semantics rather than the teacher's JSONL-issue 3-way diff.
package unionmerge

import (
	"os"
	"sort"
	"strings"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/tsjson"
)

// Result is the outcome of a union-merge: the merged, sorted, deduplicated
// event list plus the counters original_source's sync/merge.rs computes as
// a side effect of the dedup pass.
type Result struct {
	Events            []*event.Event
	NewLocal          int // events present in ours, absent from theirs
	NewRemote         int // events present in theirs, absent from ours
	DuplicatesSkipped int
}

// Merge performs the union-merge algorithm of spec §4.H: dedup by
// event_hash seeded with ours, add theirs events not yet present, sort
// ascending by (wall_ts_us, agent, event_hash). base is accepted for
// parity with the three inputs named in spec §4.H but is not read by the
// algorithm — per spec §9's noted possible source bug, this engine's
// merge driver does not perform three-way conflict annotation either.
func Merge(base, ours, theirs []*event.Event) Result {
	_ = base

	localHashes := make(map[string]bool, len(ours))
	for _, e := range ours {
		localHashes[e.EventHash] = true
	}
	remoteHashes := make(map[string]bool, len(theirs))
	for _, e := range theirs {
		remoteHashes[e.EventHash] = true
	}

	var newLocal, newRemote int
	for h := range localHashes {
		if !remoteHashes[h] {
			newLocal++
		}
	}
	for h := range remoteHashes {
		if !localHashes[h] {
			newRemote++
		}
	}

	seen := make(map[string]bool, len(ours)+len(theirs))
	merged := make([]*event.Event, 0, len(ours)+len(theirs))
	for _, e := range ours {
		if seen[e.EventHash] {
			continue
		}
		seen[e.EventHash] = true
		merged = append(merged, e)
	}
	duplicates := 0
	for _, e := range theirs {
		if seen[e.EventHash] {
			duplicates++
			continue
		}
		seen[e.EventHash] = true
		merged = append(merged, e)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.WallTSUs != b.WallTSUs {
			return a.WallTSUs < b.WallTSUs
		}
		if a.Agent != b.Agent {
			return a.Agent < b.Agent
		}
		return a.EventHash < b.EventHash
	})

	return Result{
		Events:            merged,
		NewLocal:          newLocal,
		NewRemote:         newRemote,
		DuplicatesSkipped: duplicates,
	}
}

// Render emits the merged shard header plus one TSJSON line per event, in
// the sorted order Merge produced (spec §4.H step 4).
func Render(r Result) (string, error) {
	var sb strings.Builder
	sb.WriteString(tsjson.ShardHeader + "\n")
	sb.WriteString(tsjson.FieldComment + "\n")
	for _, e := range r.Events {
		line, err := tsjson.EmitLine(e)
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// MergeFiles reads base/ours/theirs shard file paths, unions ours and
// theirs, and overwrites oursPath with the merged, re-sorted shard content
// — the git merge driver's contract (spec §6.2 merge(base, ours, theirs)).
func MergeFiles(basePath, oursPath, theirsPath string) (Result, error) {
	base, err := readShardFile(basePath)
	if err != nil {
		return Result{}, err
	}
	ours, err := readShardFile(oursPath)
	if err != nil {
		return Result{}, err
	}
	theirs, err := readShardFile(theirsPath)
	if err != nil {
		return Result{}, err
	}

	result := Merge(base, ours, theirs)
	content, err := Render(result)
	if err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(oursPath, []byte(content), 0o644); err != nil {
		return Result{}, bonerr.Wrap(bonerr.IO, "writing merged shard", err)
	}
	return result, nil
}

func readShardFile(path string) ([]*event.Event, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bonerr.Wrap(bonerr.IO, "reading shard file "+path, err)
	}
	events, err := tsjson.ParseAll(string(b))
	if err != nil {
		return nil, err
	}
	return events, nil
}
