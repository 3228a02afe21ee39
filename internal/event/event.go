// Package event defines the engine's immutable Event record and its 11
// payload variants (spec §3.2, §4.B).
package event

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/canon"
)

// Type discriminates an Event's payload.
type Type string

const (
	ItemCreate   Type = "item.create"
	ItemUpdate   Type = "item.update"
	ItemMove     Type = "item.move"
	ItemAssign   Type = "item.assign"
	ItemComment  Type = "item.comment"
	ItemLink     Type = "item.link"
	ItemUnlink   Type = "item.unlink"
	ItemDelete   Type = "item.delete"
	ItemCompact  Type = "item.compact"
	ItemSnapshot Type = "item.snapshot"
	ItemRedact   Type = "item.redact"
)

// AllTypes lists every known event type, in the order spec.md §6.1 names
// them.
var AllTypes = []Type{
	ItemCreate, ItemUpdate, ItemMove, ItemAssign, ItemComment,
	ItemLink, ItemUnlink, ItemDelete, ItemCompact, ItemSnapshot, ItemRedact,
}

func (t Type) Valid() bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Event is the engine's immutable record: an 8-field tuple (spec §3.1).
type Event struct {
	WallTSUs  int64
	Agent     string
	ITC       string // canonical text form "itc:<base64url>"
	Parents   []string
	EventType Type
	ItemID    string
	Data      map[string]any // decoded payload, canonicalized on emit
	EventHash string
}

var itemIDPattern = regexp.MustCompile(`^bn-[0-9a-z]{3,16}$`)

// ValidItemID reports whether id matches "bn-" + 3-16 lowercase hex/alnum.
func ValidItemID(id string) bool {
	return itemIDPattern.MatchString(id)
}

// ValidAgent reports whether agent is non-empty with no tab/newline/control
// characters.
func ValidAgent(agent string) bool {
	if agent == "" {
		return false
	}
	for _, r := range agent {
		if r == '\t' || r == '\n' || r == '\r' || r < 0x20 {
			return false
		}
	}
	return true
}

// SortParents sorts parent hashes ascending and removes duplicates.
func SortParents(parents []string) []string {
	if len(parents) == 0 {
		return nil
	}
	out := append([]string(nil), parents...)
	sort.Strings(out)
	deduped := out[:0]
	var prev string
	for i, p := range out {
		if i == 0 || p != prev {
			deduped = append(deduped, p)
		}
		prev = p
	}
	return deduped
}

// Validate checks the structural invariants of spec §3.1 that don't
// require recomputing the hash (see canon/hash for that).
func (e *Event) Validate() error {
	if !ValidAgent(e.Agent) {
		return bonerr.New(bonerr.InvalidInput, "agent must be non-empty with no control characters")
	}
	if !e.EventType.Valid() {
		return bonerr.New(bonerr.InvalidInput, "unknown event_type: "+string(e.EventType))
	}
	if !ValidItemID(e.ItemID) {
		return bonerr.New(bonerr.InvalidInput, "invalid item_id: "+e.ItemID)
	}
	sorted := SortParents(e.Parents)
	if len(sorted) != len(e.Parents) {
		return bonerr.New(bonerr.InvalidInput, "parents must contain no duplicates")
	}
	for i := range sorted {
		if sorted[i] != e.Parents[i] {
			return bonerr.New(bonerr.InvalidInput, "parents must be sorted ascending")
		}
	}
	for _, p := range e.Parents {
		if !canon.ValidHashFormat(p) {
			return bonerr.New(bonerr.InvalidInput, "malformed parent hash: "+p)
		}
	}
	return nil
}

// ParentsCSV returns the comma-joined, already-sorted parent hash list used
// as field 4 of the TSJSON line (empty string for a root event).
func (e *Event) ParentsCSV() string {
	return strings.Join(e.Parents, ",")
}

// CanonicalData returns the canonical JSON encoding of e.Data (field 7).
func (e *Event) CanonicalData() ([]byte, error) {
	return canon.MarshalValue(e.Data)
}

// ComputeHash computes blake3(tab-join(f1..f7) + "\n") per spec §4.A,
// independent of whatever e.EventHash currently holds.
func (e *Event) ComputeHash() (string, error) {
	data, err := e.CanonicalData()
	if err != nil {
		return "", err
	}
	preimage := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
		e.WallTSUs, e.Agent, e.ITC, e.ParentsCSV(), e.EventType, e.ItemID, data)
	return canon.Hash([]byte(preimage)), nil
}

// VerifyHash reports whether e.EventHash matches the recomputed hash.
func (e *Event) VerifyHash() (bool, error) {
	computed, err := e.ComputeHash()
	if err != nil {
		return false, err
	}
	return computed == e.EventHash, nil
}

// Stamp computes and assigns e.EventHash from the current field values.
func (e *Event) Stamp() error {
	h, err := e.ComputeHash()
	if err != nil {
		return err
	}
	e.EventHash = h
	return nil
}
