package itc

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/untoldecay/bones/internal/bonerr"
)

// TextPrefix is prepended to the base64url-encoded compact wire form.
const TextPrefix = "itc:"

const formatVersion = 1

// bitWriter packs bits MSB-first into a byte slice.
type bitWriter struct {
	buf  []byte
	cur  byte
	nbit uint
}

func (w *bitWriter) writeBit(b int) {
	w.cur = (w.cur << 1) | byte(b&1)
	w.nbit++
	if w.nbit == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.nbit = 0
	}
}

func (w *bitWriter) bitLen() int {
	return len(w.buf)*8 + int(w.nbit)
}

func (w *bitWriter) bytes() []byte {
	if w.nbit == 0 {
		return w.buf
	}
	return append(w.buf, w.cur<<(8-w.nbit))
}

type bitReader struct {
	buf  []byte
	pos  int // bit position
	nbit int
}

func newBitReader(buf []byte, nbit int) *bitReader {
	return &bitReader{buf: buf, nbit: nbit}
}

func (r *bitReader) readBit() (int, error) {
	if r.pos >= r.nbit {
		return 0, bonerr.New(bonerr.ParseError, "itc: unexpected end of bitstream")
	}
	byteIdx := r.pos / 8
	bitIdx := 7 - uint(r.pos%8)
	r.pos++
	return int((r.buf[byteIdx] >> bitIdx) & 1), nil
}

func encodeIDBits(w *bitWriter, id *Id) {
	if id.Leaf {
		w.writeBit(0)
		w.writeBit(id.Value)
		return
	}
	w.writeBit(1)
	encodeIDBits(w, id.Left)
	encodeIDBits(w, id.Right)
}

func decodeIDBits(r *bitReader) (*Id, error) {
	tag, err := r.readBit()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		v, err := r.readBit()
		if err != nil {
			return nil, err
		}
		return idLeaf(v), nil
	}
	l, err := decodeIDBits(r)
	if err != nil {
		return nil, err
	}
	rgt, err := decodeIDBits(r)
	if err != nil {
		return nil, err
	}
	return idBranch(l, rgt), nil
}

func encodeEventShape(w *bitWriter, e *Event) {
	if e.Leaf {
		w.writeBit(0)
		return
	}
	w.writeBit(1)
	encodeEventShape(w, e.Left)
	encodeEventShape(w, e.Right)
}

func decodeEventShape(r *bitReader) (*Event, int, error) {
	tag, err := r.readBit()
	if err != nil {
		return nil, 0, err
	}
	if tag == 0 {
		return eventLeaf(0), 1, nil
	}
	l, ln, err := decodeEventShape(r)
	if err != nil {
		return nil, 0, err
	}
	rgt, rn, err := decodeEventShape(r)
	if err != nil {
		return nil, 0, err
	}
	return eventBranch(0, l, rgt), 1 + ln + rn, nil
}

func collectEventValues(e *Event, out *[]int) {
	*out = append(*out, e.N)
	if !e.Leaf {
		collectEventValues(e.Left, out)
		collectEventValues(e.Right, out)
	}
}

func fillEventValues(e *Event, values []int, idx *int) {
	e.N = values[*idx]
	*idx++
	if !e.Leaf {
		fillEventValues(e.Left, values, idx)
		fillEventValues(e.Right, values, idx)
	}
}

// EncodeBinary serializes a stamp to the compact wire format: version byte
// + varint id-bit-length + packed id bits + varint event-bit-length +
// packed event-shape bits + varint value count + varint node counters.
func EncodeBinary(s Stamp) []byte {
	idW := &bitWriter{}
	encodeIDBits(idW, s.ID)
	idBits := idW.bitLen()
	idBytes := idW.bytes()

	evW := &bitWriter{}
	encodeEventShape(evW, s.Event)
	evBits := evW.bitLen()
	evBytes := evW.bytes()

	var values []int
	collectEventValues(s.Event, &values)

	out := make([]byte, 0, 16)
	out = append(out, formatVersion)
	out = binary.AppendUvarint(out, uint64(idBits))
	out = append(out, idBytes...)
	out = binary.AppendUvarint(out, uint64(evBits))
	out = append(out, evBytes...)
	out = binary.AppendUvarint(out, uint64(len(values)))
	for _, v := range values {
		out = binary.AppendUvarint(out, uint64(v))
	}
	return out
}

// DecodeBinary parses the compact wire format produced by EncodeBinary.
func DecodeBinary(data []byte) (Stamp, error) {
	if len(data) == 0 {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: empty input")
	}
	if data[0] != formatVersion {
		return Stamp{}, bonerr.New(bonerr.ParseError, fmt.Sprintf("itc: unsupported format version %d", data[0]))
	}
	rest := data[1:]

	idBits, n := binary.Uvarint(rest)
	if n <= 0 {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: bad id-bit-length varint")
	}
	rest = rest[n:]
	idByteLen := (int(idBits) + 7) / 8
	if len(rest) < idByteLen {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: truncated id bitstream")
	}
	idBuf := rest[:idByteLen]
	rest = rest[idByteLen:]

	id, err := decodeIDBits(newBitReader(idBuf, int(idBits)))
	if err != nil {
		return Stamp{}, err
	}

	evBits, n := binary.Uvarint(rest)
	if n <= 0 {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: bad event-bit-length varint")
	}
	rest = rest[n:]
	evByteLen := (int(evBits) + 7) / 8
	if len(rest) < evByteLen {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: truncated event bitstream")
	}
	evBuf := rest[:evByteLen]
	rest = rest[evByteLen:]

	event, _, err := decodeEventShape(newBitReader(evBuf, int(evBits)))
	if err != nil {
		return Stamp{}, err
	}

	valCount, n := binary.Uvarint(rest)
	if n <= 0 {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: bad value-count varint")
	}
	rest = rest[n:]

	values := make([]int, 0, valCount)
	for i := uint64(0); i < valCount; i++ {
		v, n := binary.Uvarint(rest)
		if n <= 0 {
			return Stamp{}, bonerr.New(bonerr.ParseError, "itc: truncated value varint")
		}
		rest = rest[n:]
		values = append(values, int(v))
	}
	if len(rest) != 0 {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: trailing bytes after stamp")
	}
	idx := 0
	fillEventValues(event, values, &idx)
	if idx != len(values) {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: value count does not match event shape")
	}

	return Stamp{ID: id, Event: event}, nil
}

// EncodeText renders a stamp as "itc:<base64url>" for the TSJSON field 3.
func EncodeText(s Stamp) string {
	return TextPrefix + base64.RawURLEncoding.EncodeToString(EncodeBinary(s))
}

// DecodeText parses the "itc:<base64url>" canonical text form.
func DecodeText(text string) (Stamp, error) {
	if !strings.HasPrefix(text, TextPrefix) {
		return Stamp{}, bonerr.New(bonerr.ParseError, "itc: missing itc: prefix")
	}
	raw, err := base64.RawURLEncoding.DecodeString(text[len(TextPrefix):])
	if err != nil {
		return Stamp{}, bonerr.Wrap(bonerr.ParseError, "itc: invalid base64url", err)
	}
	return DecodeBinary(raw)
}
