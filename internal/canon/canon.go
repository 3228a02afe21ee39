// Package canon implements the engine's canonical JSON encoding: sorted
// object keys, minimal escaping, no insignificant whitespace. Two values
// with the same canonical form are equivalent for hashing (spec §4.A).
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/untoldecay/bones/internal/bonerr"
)

// Marshal decodes raw JSON and re-emits it in canonical form.
func Marshal(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, bonerr.Wrap(bonerr.InvalidInput, "invalid JSON payload", err)
	}
	if dec.More() {
		return nil, bonerr.New(bonerr.InvalidInput, "trailing data after JSON value")
	}
	return MarshalValue(v)
}

// MarshalValue canonicalizes an already-decoded value (as produced by
// encoding/json with UseNumber, or plain Go maps/slices/scalars).
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case float64:
		// Only reached for values built programmatically (not decoded via
		// UseNumber); formatted by encoding/json's float64 encoding.
		num, err := json.Marshal(val)
		if err != nil {
			return bonerr.Wrap(bonerr.InvalidInput, "invalid number", err)
		}
		buf.Write(num)
	case string:
		encodeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return bonerr.New(bonerr.InvalidInput, fmt.Sprintf("unsupported value type %T for canonicalization", v))
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[r>>4])
				buf.WriteByte(hexDigits[r&0xf])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// Equal reports whether two raw JSON payloads canonicalize to the same bytes.
func Equal(a, b []byte) bool {
	ca, errA := Marshal(a)
	cb, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
