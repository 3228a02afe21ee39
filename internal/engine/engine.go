// Package engine is the top-level handle wiring the event log, CRDT merge
// layer, and relational projection into the operations external
// collaborators (CLI, TUI, search pipeline) consume (spec §6).
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/config"
	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/fts"
	"github.com/untoldecay/bones/internal/itc"
	"github.com/untoldecay/bones/internal/projector"
	"github.com/untoldecay/bones/internal/rebuild"
	"github.com/untoldecay/bones/internal/shard"
	"github.com/untoldecay/bones/internal/store"
	"github.com/untoldecay/bones/internal/tsjson"
	"github.com/untoldecay/bones/internal/unionmerge"
)

const dbFileName = "index.db"

// Engine is a repository handle: one open shard manager and projection
// database pair (spec §6.2 "engine handle").
type Engine struct {
	RepoRoot string
	BonesDir string
	DBPath   string

	shards *shard.Manager
	db     *store.DB

	itcStamp itc.Stamp
}

// Open opens (or creates, on init) the engine at repoRoot. The caller is
// responsible for calling Close.
//
// Each Open forks its own share of the repo's persisted ITC identity (spec
// §4.F "fork()"): every concurrently-open Engine handle — one per `bn`
// invocation, since the CLI opens and closes a handle per command — owns a
// disjoint region of the identity tree for the lifetime of the handle, and
// folds its growth back in on Close ("join()"). This is what lets
// crdt.LWW's ITC-dominance tie-break ever fire: two sequential writes from
// the same lineage of handles carry event stamps where the later causally
// dominates the earlier, instead of every event carrying the same seed.
func Open(repoRoot string) (*Engine, error) {
	bonesDir := filepath.Join(repoRoot, ".bones")
	shards := shard.New(bonesDir)
	if err := shards.Init(); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(bonesDir, dbFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if _, err := rebuild.Full(context.Background(), dbPath, shards); err != nil {
			return nil, err
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	stamp, err := shards.ForkIdentity(config.LockTimeout())
	if err != nil {
		return nil, err
	}
	return &Engine{RepoRoot: repoRoot, BonesDir: bonesDir, DBPath: dbPath, shards: shards, db: db, itcStamp: stamp}, nil
}

// Close joins this handle's evolved ITC identity back into the repo's
// shared identity (spec §4.F "join()") and releases the projection
// database handle.
func (e *Engine) Close() error {
	if err := e.shards.JoinIdentity(e.itcStamp, config.LockTimeout()); err != nil {
		return err
	}
	return e.db.Close()
}

// Draft is the caller-supplied half of an event: everything append() fills
// in itself (wall_ts_us, itc, parents, event_hash) is computed here.
type Draft struct {
	Agent     string
	EventType event.Type
	ItemID    string
	Parents   []string
	Data      map[string]any
}

// Append stamps a draft into a full Event — issuing the next shard
// timestamp, attaching the engine's causal stamp, computing the content
// hash — appends it to the active shard, and folds it into the projection.
// Projection failures are logged-and-swallowed per spec §5 "Propagation":
// the log is canonical, and incremental_apply() will catch up later.
func (e *Engine) Append(ctx context.Context, d Draft) (*event.Event, error) {
	if !event.ValidAgent(d.Agent) {
		return nil, bonerr.New(bonerr.InvalidInput, "draft requires a valid agent")
	}
	if !d.EventType.Valid() {
		return nil, bonerr.New(bonerr.InvalidInput, "draft has an unknown event type")
	}
	if !event.ValidItemID(d.ItemID) {
		return nil, bonerr.New(bonerr.InvalidInput, "draft has an invalid item_id")
	}

	// Tick before reserving the timestamp so the stamp written to the log
	// reflects this append. e.itcStamp only takes the ticked value once the
	// append succeeds; on error it is left as it was, and the next append
	// ticks from that same stamp again.
	ticked := itc.Tick(e.itcStamp)

	var ev *event.Event
	_, err := e.shards.AppendStamped(func(wallTSUs int64) (string, error) {
		ev = &event.Event{
			WallTSUs:  wallTSUs,
			Agent:     d.Agent,
			ITC:       itc.EncodeText(ticked),
			Parents:   event.SortParents(d.Parents),
			EventType: d.EventType,
			ItemID:    d.ItemID,
			Data:      d.Data,
		}
		if err := ev.Validate(); err != nil {
			return "", err
		}
		if err := ev.Stamp(); err != nil {
			return "", err
		}
		return tsjson.EmitLine(ev)
	}, config.GetBool("fsync"), config.LockTimeout())
	if err != nil {
		return nil, err
	}
	e.itcStamp = ticked

	if err := projector.Apply(ctx, e.db, []*event.Event{ev}); err != nil {
		slog.Warn("projecting appended event failed; incremental apply will catch up",
			"event_hash", ev.EventHash, "err", err)
	}
	return ev, nil
}

// LineEvent pairs a parsed event with its 1-based line number in the
// concatenated replay stream of all shards, header lines included (spec
// §6.2 replay_lines()).
type LineEvent struct {
	LineNumber int
	Event      *event.Event
}

// ReplayLines streams every event across every shard in file order, each
// tagged with its line number in the full concatenated replay.
func (e *Engine) ReplayLines() ([]LineEvent, error) {
	content, err := e.shards.Replay()
	if err != nil {
		return nil, err
	}
	var out []LineEvent
	lineNo := 0
	for _, raw := range splitLines(content) {
		lineNo++
		if raw == "" || raw[0] == '#' {
			continue
		}
		ev, err := tsjson.ParseLine(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, LineEvent{LineNumber: lineNo, Event: ev})
	}
	return out, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// Rebuild performs a full drop-and-replay of the projection database.
func (e *Engine) Rebuild(ctx context.Context) (rebuild.Report, error) {
	if err := e.db.Close(); err != nil {
		return rebuild.Report{}, bonerr.Wrap(bonerr.IO, "closing projection before rebuild", err)
	}
	report, err := rebuild.Full(ctx, e.DBPath, e.shards)
	if err != nil {
		return rebuild.Report{}, err
	}
	db, err := store.Open(e.DBPath)
	if err != nil {
		return rebuild.Report{}, err
	}
	e.db = db
	return report, nil
}

// IncrementalApply folds only events appended since the projection's last
// cursor, falling back to a full rebuild if the cursor no longer matches
// the log (spec §4.J).
func (e *Engine) IncrementalApply(ctx context.Context) (rebuild.Report, error) {
	if err := e.db.Close(); err != nil {
		return rebuild.Report{}, bonerr.Wrap(bonerr.IO, "closing projection before incremental apply", err)
	}
	report, err := rebuild.Incremental(ctx, e.DBPath, e.shards)
	if err != nil {
		return rebuild.Report{}, err
	}
	db, err := store.Open(e.DBPath)
	if err != nil {
		return rebuild.Report{}, err
	}
	e.db = db
	return report, nil
}

// ImportEvents appends already-hashed events (e.g. from `bn export` on
// another clone) verbatim into their month-routed shards, verifying each
// event's hash before writing, then incrementally re-projects. Duplicate
// events (already present in the log) are skipped rather than erroring,
// since imports commonly overlap with what the log already has.
func (e *Engine) ImportEvents(ctx context.Context, events []*event.Event) (int, error) {
	existing, err := e.ReplayLines()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, le := range existing {
		seen[le.Event.EventHash] = true
	}

	imported := 0
	for _, ev := range events {
		if seen[ev.EventHash] {
			continue
		}
		ok, err := ev.VerifyHash()
		if err != nil {
			return imported, err
		}
		if !ok {
			return imported, bonerr.New(bonerr.HashMismatch, "imported event hash does not match its recomputed content: "+ev.EventHash)
		}
		line, err := tsjson.EmitLine(ev)
		if err != nil {
			return imported, err
		}
		if err := e.shards.Append(line, ev.WallTSUs, config.GetBool("fsync"), config.LockTimeout()); err != nil {
			return imported, err
		}
		seen[ev.EventHash] = true
		imported++
	}

	if imported > 0 {
		if _, err := e.IncrementalApply(ctx); err != nil {
			return imported, err
		}
	}
	return imported, nil
}

// Merge performs the git merge driver's union-merge and overwrites oursPath
// with the merged, deterministically-sorted shard content (spec §6.2).
func (e *Engine) Merge(basePath, oursPath, theirsPath string) (unionmerge.Result, error) {
	return unionmerge.MergeFiles(basePath, oursPath, theirsPath)
}

// GetItem, ListItems, GetComments, GetDependencies, and GetAssignees are
// thin pass-throughs to the projection's read queries (spec §6.2).
func (e *Engine) GetItem(ctx context.Context, itemID string) (store.Item, error) {
	return e.db.GetItem(ctx, itemID)
}

func (e *Engine) ListItems(ctx context.Context, filter store.ListItemsFilter) ([]store.Item, error) {
	return e.db.ListItems(ctx, filter)
}

func (e *Engine) GetComments(ctx context.Context, itemID string) ([]store.Comment, error) {
	return e.db.GetComments(ctx, itemID)
}

func (e *Engine) GetDependencies(ctx context.Context, itemID string) ([]store.Dependency, error) {
	return e.db.GetDependencies(ctx, itemID)
}

func (e *Engine) GetAssignees(ctx context.Context, itemID string) ([]string, error) {
	return e.db.GetAssignees(ctx, itemID)
}

// SearchFTS runs a full-text query over titles/descriptions/labels.
func (e *Engine) SearchFTS(ctx context.Context, query string, limit int) ([]fts.Hit, error) {
	return fts.Search(ctx, e.db.UnderlyingDB(), query, limit)
}
