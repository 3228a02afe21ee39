// Package projector folds the event log into the relational projection
// (spec §4.I): one fold rule per event type, applied in the deterministic
// total order (wall_ts_us, agent, event_hash) union-merge produces.
package projector

import (
	"context"
	"database/sql"
	"strings"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/canon"
	"github.com/untoldecay/bones/internal/crdt"
	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/itc"
	"github.com/untoldecay/bones/internal/store"
)

// scalarColumns are the item.update target fields with a dedicated column
// on the items table; anything else is patched into item_extras instead.
var scalarColumns = map[string]bool{
	"title": true, "description": true, "kind": true, "size": true, "urgency": true,
}

// Apply folds a batch of already-sorted events into db within a single
// transaction, skipping any event already recorded in projected_events so
// re-running a batch (or overlapping batches) is idempotent.
func Apply(ctx context.Context, db *store.DB, events []*event.Event) error {
	return db.WithTx(ctx, func(tx *store.Tx) error {
		for _, e := range events {
			var already int
			row := tx.QueryRowContext(ctx, `SELECT 1 FROM projected_events WHERE event_hash = ?`, e.EventHash)
			switch err := row.Scan(&already); err {
			case nil:
				continue
			case sql.ErrNoRows:
			default:
				return bonerr.Wrap(bonerr.IO, "checking projected_events", err)
			}

			if err := foldOne(ctx, tx, e); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO projected_events (event_hash) VALUES (?)`, e.EventHash); err != nil {
				return bonerr.Wrap(bonerr.IO, "recording projected event", err)
			}
		}
		return nil
	})
}

func foldOne(ctx context.Context, tx *store.Tx, e *event.Event) error {
	if err := ensureItemRow(ctx, tx, e); err != nil {
		return err
	}
	switch e.EventType {
	case event.ItemCreate:
		return foldCreate(ctx, tx, e)
	case event.ItemUpdate:
		return foldUpdate(ctx, tx, e)
	case event.ItemMove:
		return foldMove(ctx, tx, e)
	case event.ItemAssign:
		return foldAssign(ctx, tx, e)
	case event.ItemComment:
		return foldComment(ctx, tx, e)
	case event.ItemLink, event.ItemUnlink:
		return foldLink(ctx, tx, e)
	case event.ItemDelete:
		return foldDelete(ctx, tx, e)
	case event.ItemCompact:
		return foldExtra(ctx, tx, e, "compact_summary", "summary")
	case event.ItemSnapshot:
		return foldExtra(ctx, tx, e, "snapshot_state", "state")
	case event.ItemRedact:
		return foldRedact(ctx, tx, e)
	default:
		return bonerr.New(bonerr.InvalidInput, "unknown event type: "+string(e.EventType))
	}
}

// ensureItemRow guarantees an items row exists before any fold rule that
// isn't itself item.create runs; replay order is sorted by
// (wall_ts_us, agent, event_hash), not causal order, so a late-arriving
// create for an item already touched by a concurrent branch is possible.
func ensureItemRow(ctx context.Context, tx *store.Tx, e *event.Event) error {
	if e.EventType == event.ItemCreate {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO items (item_id, title, created_at_us, updated_at_us) VALUES (?, '', ?, ?)`,
		e.ItemID, e.WallTSUs, e.WallTSUs)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "ensuring item row", err)
	}
	return touchUpdatedAt(ctx, tx, e.ItemID, e.WallTSUs)
}

func touchUpdatedAt(ctx context.Context, tx *store.Tx, itemID string, wallTSUs int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE items SET updated_at_us = ? WHERE item_id = ? AND updated_at_us < ?`,
		wallTSUs, itemID, wallTSUs)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "touching updated_at_us", err)
	}
	return nil
}

func foldCreate(ctx context.Context, tx *store.Tx, e *event.Event) error {
	title, _ := stringOr(e.Data["title"], "")
	kind, _ := stringOr(e.Data["kind"], "")
	size, _ := stringOr(e.Data["size"], "")
	urgency, _ := stringOr(e.Data["urgency"], "")
	description, _ := stringOr(e.Data["description"], "")
	var parentID any
	if p, ok := e.Data["parent"]; ok {
		parentID = p
	}

	if err := applyFieldStamp(ctx, tx, e, "title", title); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO items (item_id, title, description, kind, size, urgency, state, parent_id, created_at_us, updated_at_us)
		VALUES (?, ?, ?, ?, ?, ?, 'open', ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			kind = excluded.kind,
			size = excluded.size,
			urgency = excluded.urgency,
			parent_id = COALESCE(items.parent_id, excluded.parent_id),
			created_at_us = MIN(items.created_at_us, excluded.created_at_us)
	`, e.ItemID, title, description, kind, size, urgency, parentID, e.WallTSUs, e.WallTSUs)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.create", err)
	}

	if labelsRaw, ok := e.Data["labels"].([]any); ok {
		var labels []string
		for _, l := range labelsRaw {
			label, ok := l.(string)
			if !ok {
				continue
			}
			labels = append(labels, label)
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_labels (item_id, label) VALUES (?, ?)`, e.ItemID, label); err != nil {
				return bonerr.Wrap(bonerr.IO, "inserting label", err)
			}
		}
		if len(labels) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE items SET search_labels = ? WHERE item_id = ?`, strings.Join(labels, " "), e.ItemID); err != nil {
				return bonerr.Wrap(bonerr.IO, "updating search_labels", err)
			}
		}
	}
	return nil
}

// foldUpdate applies an item.update event's (field, value) patch through an
// LWW register, reading and writing the field's persisted stamp so a
// later-arriving-but-causally-older event never clobbers a winning value.
func foldUpdate(ctx context.Context, tx *store.Tx, e *event.Event) error {
	field, _ := stringOr(e.Data["field"], "")
	if field == "" {
		return bonerr.New(bonerr.InvalidInput, "item.update event missing field")
	}
	value := e.Data["value"]

	won, err := applyFieldStampIfWins(ctx, tx, e, field)
	if err != nil || !won {
		return err
	}

	if scalarColumns[field] {
		valStr, _ := stringOr(value, "")
		query := `UPDATE items SET ` + field + ` = ? WHERE item_id = ?`
		if _, err := tx.ExecContext(ctx, query, valStr, e.ItemID); err != nil {
			return bonerr.Wrap(bonerr.IO, "applying scalar update", err)
		}
		return nil
	}

	encoded, err := canon.MarshalValue(value)
	if err != nil {
		return bonerr.Wrap(bonerr.InvalidInput, "encoding extra field value", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO item_extras (item_id, key, value) VALUES (?, ?, ?) ON CONFLICT(item_id, key) DO UPDATE SET value = excluded.value`,
		e.ItemID, field, string(encoded))
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item_extras update", err)
	}
	return nil
}

// applyFieldStamp seeds a field's LWW stamp only if the field has none yet,
// leaving an existing stamp in place (used for the title set at create
// time).
func applyFieldStamp(ctx context.Context, tx *store.Tx, e *event.Event, field, _ string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO item_field_stamps (item_id, field, stamp, wall_ts_us, agent, event_hash) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id, field) DO NOTHING`,
		e.ItemID, field, e.ITC, e.WallTSUs, e.Agent, e.EventHash)
	return err
}

// applyFieldStampIfWins merges e against the field's current stamp and, if
// e wins, persists the new stamp and reports true.
func applyFieldStampIfWins(ctx context.Context, tx *store.Tx, e *event.Event, field string) (bool, error) {
	var curStamp, curAgent, curHash string
	var curWallTS int64
	row := tx.QueryRowContext(ctx,
		`SELECT stamp, wall_ts_us, agent, event_hash FROM item_field_stamps WHERE item_id = ? AND field = ?`, e.ItemID, field)
	err := row.Scan(&curStamp, &curWallTS, &curAgent, &curHash)
	if err != nil && err != sql.ErrNoRows {
		return false, bonerr.Wrap(bonerr.IO, "reading field stamp", err)
	}

	candidate := crdt.LWW[string]{Value: "", Stamp: decodeStampOrSeed(e.ITC), WallTS: e.WallTSUs, AgentID: e.Agent, EventHash: e.EventHash}
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_field_stamps (item_id, field, stamp, wall_ts_us, agent, event_hash) VALUES (?, ?, ?, ?, ?, ?)`,
			e.ItemID, field, e.ITC, e.WallTSUs, e.Agent, e.EventHash); err != nil {
			return false, bonerr.Wrap(bonerr.IO, "seeding field stamp", err)
		}
		return true, nil
	}

	current := crdt.LWW[string]{Value: "", Stamp: decodeStampOrSeed(curStamp), WallTS: curWallTS, AgentID: curAgent, EventHash: curHash}
	winner := crdt.Merge(current, candidate)
	if winner.EventHash != candidate.EventHash {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE item_field_stamps SET stamp = ?, wall_ts_us = ?, agent = ?, event_hash = ? WHERE item_id = ? AND field = ?`,
		e.ITC, e.WallTSUs, e.Agent, e.EventHash, e.ItemID, field); err != nil {
		return false, bonerr.Wrap(bonerr.IO, "updating field stamp", err)
	}
	return true, nil
}

func decodeStampOrSeed(text string) itc.Stamp {
	if text == "" {
		return itc.Seed()
	}
	s, err := itc.DecodeText(text)
	if err != nil {
		return itc.Seed()
	}
	return s
}

func foldMove(ctx context.Context, tx *store.Tx, e *event.Event) error {
	target, _ := stringOr(e.Data["target"], "")
	phase, err := crdt.ParsePhase(target)
	if err != nil {
		return err
	}
	reopen := false
	if v, ok := e.Data["reopen"]; ok {
		reopen, _ = v.(bool)
	}

	var curEpoch int64
	var curState string
	row := tx.QueryRowContext(ctx, `SELECT epoch, state FROM items WHERE item_id = ?`, e.ItemID)
	if err := row.Scan(&curEpoch, &curState); err != nil {
		return bonerr.Wrap(bonerr.IO, "reading item lifecycle state", err)
	}
	curPhase, err := crdt.ParsePhase(curState)
	if err != nil {
		curPhase = crdt.Open
	}
	current := crdt.EpochPhase{Epoch: uint64(curEpoch), Phase: curPhase}

	candidateEpoch := current.Epoch
	if reopen {
		candidateEpoch = current.Epoch + 1
	}
	candidate := crdt.EpochPhase{Epoch: candidateEpoch, Phase: phase}
	merged := crdt.MergeEpochPhase(current, candidate)

	_, err = tx.ExecContext(ctx, `UPDATE items SET epoch = ?, state = ? WHERE item_id = ?`,
		int64(merged.Epoch), merged.Phase.String(), e.ItemID)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.move", err)
	}
	return nil
}

func foldAssign(ctx context.Context, tx *store.Tx, e *event.Event) error {
	agent, _ := stringOr(e.Data["agent"], "")
	action, _ := stringOr(e.Data["action"], "")
	if agent == "" {
		return bonerr.New(bonerr.InvalidInput, "item.assign event missing agent")
	}
	var err error
	switch action {
	case "assign":
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_assignees (item_id, agent) VALUES (?, ?)`, e.ItemID, agent)
	case "unassign":
		_, err = tx.ExecContext(ctx, `DELETE FROM item_assignees WHERE item_id = ? AND agent = ?`, e.ItemID, agent)
	default:
		return bonerr.New(bonerr.InvalidInput, "item.assign action must be assign or unassign")
	}
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.assign", err)
	}
	return nil
}

func foldComment(ctx context.Context, tx *store.Tx, e *event.Event) error {
	body, _ := stringOr(e.Data["body"], "")
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO item_comments (item_id, event_hash, author, body, created_at_us) VALUES (?, ?, ?, ?, ?)`,
		e.ItemID, e.EventHash, e.Agent, body, e.WallTSUs)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.comment", err)
	}
	return nil
}

func foldLink(ctx context.Context, tx *store.Tx, e *event.Event) error {
	target, _ := stringOr(e.Data["target"], "")
	linkType, _ := stringOr(e.Data["link_type"], "")
	if target == "" || linkType == "" {
		return bonerr.New(bonerr.InvalidInput, "item.link/unlink event missing target or link_type")
	}
	var err error
	if e.EventType == event.ItemLink {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_dependencies (item_id, depends_on_item_id, link_type) VALUES (?, ?, ?)`,
			e.ItemID, target, linkType)
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM item_dependencies WHERE item_id = ? AND depends_on_item_id = ? AND link_type = ?`,
			e.ItemID, target, linkType)
	}
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.link/unlink", err)
	}
	return nil
}

func foldDelete(ctx context.Context, tx *store.Tx, e *event.Event) error {
	_, err := tx.ExecContext(ctx, `UPDATE items SET is_deleted = 1 WHERE item_id = ?`, e.ItemID)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.delete", err)
	}
	if reason, ok := stringOr(e.Data["reason"], ""); ok && reason != "" {
		return upsertExtra(ctx, tx, e.ItemID, "delete_reason", reason)
	}
	return nil
}

// foldExtra records compact/snapshot replay hints into item_extras; neither
// event type changes item-visible state beyond its bookkeeping payload.
func foldExtra(ctx context.Context, tx *store.Tx, e *event.Event, key, dataKey string) error {
	encoded, err := canon.MarshalValue(e.Data[dataKey])
	if err != nil {
		return bonerr.Wrap(bonerr.InvalidInput, "encoding "+key, err)
	}
	return upsertExtra(ctx, tx, e.ItemID, key, string(encoded))
}

// foldRedact tombstones an earlier event's visible payload. Only comment
// bodies are redacted for now, since that is the one piece of free-text
// payload the projection stores verbatim.
func foldRedact(ctx context.Context, tx *store.Tx, e *event.Event) error {
	targetHash, _ := stringOr(e.Data["target_hash"], "")
	if targetHash == "" {
		return bonerr.New(bonerr.InvalidInput, "item.redact event missing target_hash")
	}
	_, err := tx.ExecContext(ctx, `UPDATE item_comments SET body = '[redacted]' WHERE event_hash = ?`, targetHash)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "folding item.redact", err)
	}
	return nil
}

func upsertExtra(ctx context.Context, tx *store.Tx, itemID, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO item_extras (item_id, key, value) VALUES (?, ?, ?) ON CONFLICT(item_id, key) DO UPDATE SET value = excluded.value`,
		itemID, key, value)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "upserting item_extras", err)
	}
	return nil
}

func stringOr(v any, fallback string) (string, bool) {
	if v == nil {
		return fallback, false
	}
	s, ok := v.(string)
	if !ok {
		return fallback, false
	}
	return s, true
}
