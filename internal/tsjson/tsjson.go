// Package tsjson implements the TSJSON line codec: one-line tab-separated
// records with an embedded canonical-JSON payload (spec §4.C).
package tsjson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/canon"
	"github.com/untoldecay/bones/internal/event"
)

// ShardHeader and FieldComment are the two fixed header lines every shard
// file begins with (spec §6.1).
const (
	ShardHeader  = "# bones event log v1"
	FieldComment = "# fields: wall_ts_us\tagent\titc\tparents\ttype\titem_id\tdata\tevent_hash"
)

const fieldCount = 8

// ParseError carries the line number and reason for a parse failure
// (spec §4.C "Parser diagnostics").
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func newParseErr(line int, reason string) error {
	return bonerr.Wrap(bonerr.ParseError, fmt.Sprintf("line %d", line), &ParseError{Line: line, Reason: reason})
}

// isIgnorable reports whether a raw line should be skipped: blank, or a
// comment line starting with '#'.
func isIgnorable(line string) bool {
	return line == "" || strings.HasPrefix(line, "#")
}

// Header is the cheap, partial decode of a line used by filters before
// full decode (log/history/blame) — spec §4.C "Header-only" mode.
type Header struct {
	WallTSUs int64
	Agent    string
	ItemID   string
	Type     event.Type
}

// ParseHeader performs the cheap split-on-tabs partial decode.
func ParseHeader(line string) (Header, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return Header{}, bonerr.New(bonerr.ParseError, fmt.Sprintf("expected %d tab-separated fields, got %d", fieldCount, len(fields)))
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Header{}, bonerr.Wrap(bonerr.ParseError, "invalid wall_ts_us", err)
	}
	return Header{
		WallTSUs: ts,
		Agent:    fields[1],
		ItemID:   fields[5],
		Type:     event.Type(fields[4]),
	}, nil
}

// ParseLine fully decodes one TSJSON line into an Event, including JSON
// payload typing driven by the event_type field.
func ParseLine(line string) (*event.Event, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return nil, bonerr.New(bonerr.ParseError, fmt.Sprintf("expected %d tab-separated fields, got %d", fieldCount, len(fields)))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.ParseError, "invalid wall_ts_us", err)
	}

	agent := fields[1]
	itc := fields[2]

	var parents []string
	if fields[3] != "" {
		parents = strings.Split(fields[3], ",")
	}

	etype := event.Type(fields[4])
	if !etype.Valid() {
		return nil, bonerr.New(bonerr.ParseError, "unknown event_type: "+fields[4])
	}

	itemID := fields[5]

	var data map[string]any
	dec := json.NewDecoder(strings.NewReader(fields[6]))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, bonerr.Wrap(bonerr.ParseError, "invalid JSON payload", err)
	}

	hash := fields[7]
	if !canon.ValidHashFormat(hash) {
		return nil, bonerr.New(bonerr.ParseError, "malformed event_hash: "+hash)
	}

	e := &event.Event{
		WallTSUs:  ts,
		Agent:     agent,
		ITC:       itc,
		Parents:   parents,
		EventType: etype,
		ItemID:    itemID,
		Data:      data,
		EventHash: hash,
	}
	return e, nil
}

// ParseAll parses every non-ignorable line in content, reporting only the
// first failure encountered (spec §4.C).
func ParseAll(content string) ([]*event.Event, error) {
	lines := strings.Split(content, "\n")
	var events []*event.Event
	for i, line := range lines {
		lineNo := i + 1
		if isIgnorable(line) {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return nil, newParseErr(lineNo, err.Error())
		}
		events = append(events, e)
	}
	return events, nil
}

// EmitLine serializes an Event to its canonical TSJSON line, without the
// trailing LF. Field 7 is always canonical JSON; field 8 must already be
// computed (see canon.Hash via event hashing helpers).
func EmitLine(e *event.Event) (string, error) {
	data, err := e.CanonicalData()
	if err != nil {
		return "", err
	}
	// canon escapes \n and \t inside strings, so a literal occurrence here
	// would mean a canonicalizer bug, not valid input — still worth a hard
	// check since it would silently corrupt the line grammar.
	if strings.ContainsRune(string(data), '\n') || strings.ContainsRune(string(data), '\t') {
		return "", bonerr.New(bonerr.InvalidInput, "canonical payload contains a literal newline or tab")
	}
	line := strings.Join([]string{
		strconv.FormatInt(e.WallTSUs, 10),
		e.Agent,
		e.ITC,
		e.ParentsCSV(),
		string(e.EventType),
		e.ItemID,
		string(data),
		e.EventHash,
	}, "\t")
	return line, nil
}
