package event

import (
	"unicode"

	"github.com/untoldecay/bones/internal/bonerr"
)

const maxCommentCodepoints = 8192

// mergeExtras layers known fields over an extras map, known fields winning
// on key collision, matching the "extras merged at the JSON object root"
// rule of spec §3.2.
func mergeExtras(known map[string]any, extras map[string]any) map[string]any {
	out := make(map[string]any, len(known)+len(extras))
	for k, v := range extras {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return out
}

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(data map[string]any, key string) bool {
	v, ok := data[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// NewCreate builds an item.create payload (spec §3.2): title and kind are
// required; size, urgency, labels, parent, description are optional.
func NewCreate(title, kind string, opts map[string]any, extras map[string]any) (map[string]any, error) {
	if title == "" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.create requires a non-empty title")
	}
	if kind == "" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.create requires a non-empty kind")
	}
	known := map[string]any{"title": title, "kind": kind}
	for _, k := range []string{"size", "urgency", "labels", "parent", "description"} {
		if v, ok := opts[k]; ok {
			known[k] = v
		}
	}
	return mergeExtras(known, extras), nil
}

// NewUpdate builds an item.update payload: patches a single named scalar
// field to an arbitrary JSON value.
func NewUpdate(field string, value any, extras map[string]any) (map[string]any, error) {
	if field == "" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.update requires a field name")
	}
	known := map[string]any{"field": field, "value": value}
	return mergeExtras(known, extras), nil
}

// ValidPhase is the set of lifecycle phases a move target may name.
var ValidPhase = map[string]bool{"open": true, "doing": true, "done": true, "archived": true}

// NewMove builds an item.move payload: a lifecycle transition, optionally
// forcing an epoch bump via reopen=true.
func NewMove(target string, reason string, reopen bool, extras map[string]any) (map[string]any, error) {
	if !ValidPhase[target] {
		return nil, bonerr.New(bonerr.InvalidInput, "item.move target must be one of open/doing/done/archived")
	}
	known := map[string]any{"target": target}
	if reason != "" {
		known["reason"] = reason
	}
	if reopen {
		known["reopen"] = true
	}
	return mergeExtras(known, extras), nil
}

// NewAssign builds an item.assign payload: action is "assign" or "unassign".
func NewAssign(agent, action string, extras map[string]any) (map[string]any, error) {
	if !ValidAgent(agent) {
		return nil, bonerr.New(bonerr.InvalidInput, "item.assign requires a valid agent")
	}
	if action != "assign" && action != "unassign" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.assign action must be assign or unassign")
	}
	known := map[string]any{"agent": agent, "action": action}
	return mergeExtras(known, extras), nil
}

// NewComment builds an item.comment payload: body must be non-empty, at
// most 8192 codepoints, and contain no control characters other than \n\t.
func NewComment(body string, extras map[string]any) (map[string]any, error) {
	if body == "" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.comment requires a non-empty body")
	}
	count := 0
	for _, r := range body {
		count++
		if count > maxCommentCodepoints {
			return nil, bonerr.New(bonerr.InvalidInput, "item.comment body exceeds 8192 codepoints")
		}
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return nil, bonerr.New(bonerr.InvalidInput, "item.comment body contains a disallowed control character")
		}
	}
	known := map[string]any{"body": body}
	return mergeExtras(known, extras), nil
}

// NewLink builds an item.link or item.unlink payload: a directed dependency
// edge naming the target item and the link type.
func NewLink(target, linkType string, extras map[string]any) (map[string]any, error) {
	if !ValidItemID(target) {
		return nil, bonerr.New(bonerr.InvalidInput, "item.link target must be a valid item id")
	}
	if linkType == "" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.link requires a link_type")
	}
	known := map[string]any{"target": target, "link_type": linkType}
	return mergeExtras(known, extras), nil
}

// NewDelete builds an item.delete payload: an optional reason for a
// soft-delete.
func NewDelete(reason string, extras map[string]any) (map[string]any, error) {
	known := map[string]any{}
	if reason != "" {
		known["reason"] = reason
	}
	return mergeExtras(known, extras), nil
}

// NewCompact builds an item.compact payload: a replay hint summarizing
// history for snapshot/squash.
func NewCompact(summary string, extras map[string]any) (map[string]any, error) {
	if summary == "" {
		return nil, bonerr.New(bonerr.InvalidInput, "item.compact requires a non-empty summary")
	}
	known := map[string]any{"summary": summary}
	return mergeExtras(known, extras), nil
}

// NewSnapshot builds an item.snapshot payload: an opaque checkpoint state
// blob for fast replay.
func NewSnapshot(state any, extras map[string]any) (map[string]any, error) {
	if state == nil {
		return nil, bonerr.New(bonerr.InvalidInput, "item.snapshot requires a state value")
	}
	known := map[string]any{"state": state}
	return mergeExtras(known, extras), nil
}

// NewRedact builds an item.redact payload: tombstones an earlier event's
// payload by hash.
func NewRedact(targetHash, reason string, extras map[string]any) (map[string]any, error) {
	known := map[string]any{"target_hash": targetHash}
	if reason != "" {
		known["reason"] = reason
	}
	return mergeExtras(known, extras), nil
}
