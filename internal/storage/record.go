package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// FieldSize is the width of each short string field of a Record.
	FieldSize = 8

	// RecordSize is the packed on-disk size of a Record: two 8-byte
	// string fields followed by a 32-bit tag.
	RecordSize = 2*FieldSize + 4
)

// Record is the composite value stored at a leaf entry: two short
// zero-terminated byte strings and an integer tag.
type Record struct {
	S1  [FieldSize]byte
	S2  [FieldSize]byte
	Tag int32
}

// MakeRecord builds a Record from the two strings and tag, truncating
// each string at FieldSize bytes and zero-filling the remainder.
func MakeRecord(s1, s2 string, tag int32) Record {
	var r Record
	copy(r.S1[:], s1)
	copy(r.S2[:], s2)
	r.Tag = tag
	return r
}

// Compare orders records lexicographically over (S1, S2, Tag). The string
// fields compare as zero-terminated strings, so bytes past the first NUL
// do not participate.
func (r Record) Compare(other Record) int {
	if c := bytes.Compare(cstring(r.S1[:]), cstring(other.S1[:])); c != 0 {
		return c
	}
	if c := bytes.Compare(cstring(r.S2[:]), cstring(other.S2[:])); c != 0 {
		return c
	}
	switch {
	case r.Tag < other.Tag:
		return -1
	case r.Tag > other.Tag:
		return 1
	}
	return 0
}

// Equal reports whether both string fields and the tag match.
func (r Record) Equal(other Record) bool {
	return r.Compare(other) == 0
}

// Less reports whether r orders before other.
func (r Record) Less(other Record) bool {
	return r.Compare(other) < 0
}

// String renders the record the way the command driver prints it.
func (r Record) String() string {
	return fmt.Sprintf("%s %s %d", cstring(r.S1[:]), cstring(r.S2[:]), r.Tag)
}

// EncodeTo writes the packed record into buf, which must hold at least
// RecordSize bytes.
func (r Record) EncodeTo(buf []byte) {
	copy(buf[0:FieldSize], r.S1[:])
	copy(buf[FieldSize:2*FieldSize], r.S2[:])
	binary.LittleEndian.PutUint32(buf[2*FieldSize:RecordSize], uint32(r.Tag))
}

// DecodeRecord reads a packed record from buf.
func DecodeRecord(buf []byte) (Record, error) {
	var r Record
	if len(buf) < RecordSize {
		return r, errors.Errorf("record buffer too short: %d bytes", len(buf))
	}
	copy(r.S1[:], buf[0:FieldSize])
	copy(r.S2[:], buf[FieldSize:2*FieldSize])
	r.Tag = int32(binary.LittleEndian.Uint32(buf[2*FieldSize : RecordSize]))
	return r, nil
}
