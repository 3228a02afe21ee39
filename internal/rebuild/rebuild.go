// Package rebuild drives full and incremental replay of the event log into
// the projection database (spec §4.J).
package rebuild

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/config"
	"github.com/untoldecay/bones/internal/dag"
	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/projector"
	"github.com/untoldecay/bones/internal/shard"
	"github.com/untoldecay/bones/internal/store"
	"github.com/untoldecay/bones/internal/tsjson"
)

// Report summarizes a rebuild or incremental apply run (spec §6.2
// rebuild()/incremental_apply() return shape).
type Report struct {
	EventCount  int
	ItemCount   int
	ShardCount  int
	Elapsed     time.Duration
	FullRebuilt bool
}

// Full deletes and recreates the projection database at dbPath, replays
// every shard in order, verifies the resulting Merkle-DAG, and folds every
// event through the projector.
func Full(ctx context.Context, dbPath string, shards *shard.Manager) (Report, error) {
	start := time.Now()

	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return Report{}, bonerr.Wrap(bonerr.IO, "removing stale projection database", err)
	}
	for _, sidecar := range []string{"-wal", "-shm", "-journal"} {
		_ = os.Remove(dbPath + sidecar)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return Report{}, err
	}
	defer db.Close()

	refs, err := shards.ListShards()
	if err != nil {
		return Report{}, err
	}

	var all []*event.Event
	for _, ref := range refs {
		content, err := shards.ReadShard(ref)
		if err != nil {
			return Report{}, err
		}
		events, err := tsjson.ParseAll(content)
		if err != nil {
			return Report{}, err
		}
		all = append(all, events...)
	}

	if err := dag.VerifyChain(all); err != nil {
		return Report{}, err
	}

	if err := projector.Apply(ctx, db, all); err != nil {
		return Report{}, err
	}

	itemCount, err := countItems(ctx, db)
	if err != nil {
		return Report{}, err
	}

	totalSize, err := shards.TotalSize()
	if err != nil {
		return Report{}, err
	}
	var lastHash string
	if len(all) > 0 {
		lastHash = all[len(all)-1].EventHash
	}
	if err := writeCursorAt(ctx, db, totalSize, lastHash); err != nil {
		return Report{}, err
	}

	return Report{
		EventCount:  len(all),
		ItemCount:   itemCount,
		ShardCount:  len(refs),
		Elapsed:     time.Since(start),
		FullRebuilt: true,
	}, nil
}

// Incremental folds only the events appended since the projection's last
// recorded cursor — a byte offset into the full concatenated replay stream
// — streaming forward from that offset rather than re-parsing the whole
// log. If the cursor's remembered (offset, hash) no longer matches the log
// — the log was edited out from under the cursor, e.g. by a merge driver
// rewriting a shard — it falls back to Full. The parse-and-project step
// runs under the shard append lock in shared mode, so it is safe against a
// concurrent writer appending mid-parse (spec §4.J).
func Incremental(ctx context.Context, dbPath string, shards *shard.Manager) (Report, error) {
	start := time.Now()

	db, err := store.Open(dbPath)
	if err != nil {
		return Report{}, err
	}

	lastOffset, lastHash, err := readCursor(ctx, db)
	if err != nil {
		db.Close()
		return Report{}, err
	}

	fl, err := shards.RLock(config.LockTimeout())
	if err != nil {
		db.Close()
		return Report{}, err
	}

	refs, err := shards.ListShards()
	if err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}
	totalSize, err := shards.TotalSize()
	if err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}

	fallbackToFull := lastOffset > totalSize
	if !fallbackToFull {
		cursorOK, err := verifyCursor(shards, lastOffset, lastHash)
		if err != nil {
			fl.Unlock()
			db.Close()
			return Report{}, err
		}
		fallbackToFull = !cursorOK
	}
	if fallbackToFull {
		fl.Unlock()
		db.Close()
		return Full(ctx, dbPath, shards)
	}

	if lastOffset == totalSize {
		itemCount, err := countItems(ctx, db)
		fl.Unlock()
		db.Close()
		if err != nil {
			return Report{}, err
		}
		return Report{EventCount: 0, ItemCount: itemCount, ShardCount: len(refs), Elapsed: time.Since(start)}, nil
	}

	tail, err := shards.ReadFrom(lastOffset)
	if err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}
	fresh, err := tsjson.ParseAll(tail)
	if err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}

	if err := verifyFreshChain(ctx, db, fresh); err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}
	if err := projector.Apply(ctx, db, fresh); err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}

	// Header-only content (e.g. a freshly rolled, still-empty month shard)
	// can advance totalSize without adding any event; keep the previous
	// hash in that case so the next call's verifyCursor still has the right
	// event to check against.
	lastFreshHash := lastHash
	if len(fresh) > 0 {
		lastFreshHash = fresh[len(fresh)-1].EventHash
	}
	if err := writeCursorAt(ctx, db, totalSize, lastFreshHash); err != nil {
		fl.Unlock()
		db.Close()
		return Report{}, err
	}
	// Parsing and projecting are committed; release the shared lock before
	// the final read-only item count (spec §4.J "parsing; commit; release").
	fl.Unlock()

	itemCount, err := countItems(ctx, db)
	db.Close()
	if err != nil {
		return Report{}, err
	}
	return Report{
		EventCount: len(fresh),
		ItemCount:  itemCount,
		ShardCount: len(refs),
		Elapsed:    time.Since(start),
	}, nil
}

// verifyCursor reports whether the event immediately before offset in the
// concatenated replay stream still hashes to expectedHash, reading the one
// shard that boundary falls in (and, when that shard holds no event before
// the boundary, earlier shards back to the last event) rather than the
// whole log. offset==0 always verifies (nothing consumed yet); a boundary
// with no event anywhere before it verifies only against an empty
// expectedHash.
func verifyCursor(shards *shard.Manager, offset int64, expectedHash string) (bool, error) {
	if offset == 0 {
		return true, nil
	}
	refs, err := shards.ListShards()
	if err != nil {
		return false, err
	}
	var consumed int64
	for i, ref := range refs {
		size, err := shards.ShardSize(ref)
		if err != nil {
			return false, err
		}
		if consumed+size < offset {
			consumed += size
			continue
		}
		content, err := shards.ReadShard(ref)
		if err != nil {
			return false, err
		}
		rel := offset - consumed
		if rel > int64(len(content)) {
			return false, nil
		}
		line := lastEventLine(content[:rel])
		for j := i - 1; line == "" && j >= 0; j-- {
			prev, err := shards.ReadShard(refs[j])
			if err != nil {
				return false, err
			}
			line = lastEventLine(prev)
		}
		if line == "" {
			return expectedHash == "", nil
		}
		ev, err := tsjson.ParseLine(line)
		if err != nil {
			return false, nil
		}
		return ev.EventHash == expectedHash, nil
	}
	return false, nil
}

// lastEventLine returns the last non-header, non-empty line in s.
func lastEventLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if line == "" || line[0] == '#' {
			continue
		}
		return line
	}
	return ""
}

// verifyFreshChain checks hash integrity for a batch of not-yet-projected
// events and that every parent they name resolves either to another event
// in the same batch or to one already recorded in projected_events —
// equivalent to dag.VerifyChain's parent-closure check, but scoped to the
// fresh batch instead of the full log (spec §4.E, §4.J).
func verifyFreshChain(ctx context.Context, db *store.DB, fresh []*event.Event) error {
	local := make(map[string]bool, len(fresh))
	for _, e := range fresh {
		ok, err := dag.VerifyEventHash(e)
		if err != nil {
			return bonerr.Wrap(bonerr.HashMismatch, "computing hash for "+e.EventHash, err)
		}
		if !ok {
			return bonerr.New(bonerr.HashMismatch, "stored hash does not match recomputed hash: "+e.EventHash)
		}
		local[e.EventHash] = true
	}
	for _, e := range fresh {
		for _, p := range e.Parents {
			if local[p] {
				continue
			}
			var x int
			row := db.UnderlyingDB().QueryRowContext(ctx, `SELECT 1 FROM projected_events WHERE event_hash = ?`, p)
			switch err := row.Scan(&x); err {
			case nil:
			case sql.ErrNoRows:
				return bonerr.New(bonerr.UnknownParent, "event "+e.EventHash+" references unknown parent "+p)
			default:
				return bonerr.Wrap(bonerr.IO, "checking parent closure", err)
			}
		}
	}
	return nil
}

func countItems(ctx context.Context, db *store.DB) (int, error) {
	row := db.UnderlyingDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE is_deleted = 0`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, bonerr.Wrap(bonerr.IO, "counting items", err)
	}
	return n, nil
}

func readCursor(ctx context.Context, db *store.DB) (int64, string, error) {
	row := db.UnderlyingDB().QueryRowContext(ctx, `SELECT last_event_offset, last_event_hash FROM projection_meta WHERE id = 1`)
	var offset int64
	var hash string
	if err := row.Scan(&offset, &hash); err != nil {
		return 0, "", bonerr.Wrap(bonerr.IO, "reading projection cursor", err)
	}
	return offset, hash, nil
}

// writeCursorAt records offset — a byte offset into the full concatenated
// replay stream — and the hash of the event immediately preceding it, so a
// later Incremental call can verify the log hasn't been rewritten underneath
// the cursor before trusting it.
func writeCursorAt(ctx context.Context, db *store.DB, offset int64, lastHash string) error {
	_, err := db.UnderlyingDB().ExecContext(ctx,
		`UPDATE projection_meta SET last_event_offset = ?, last_event_hash = ? WHERE id = 1`,
		offset, lastHash)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "writing projection cursor", err)
	}
	return nil
}
