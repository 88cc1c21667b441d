package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeKeyPadding(t *testing.T) {
	k := MakeKey("abc")
	assert.Equal(t, byte('a'), k[0])
	assert.Equal(t, byte('c'), k[2])
	for i := 3; i < KeySize; i++ {
		if k[i] != 0 {
			t.Fatalf("byte %d not zero-padded: %#x", i, k[i])
		}
	}
	assert.Equal(t, "abc", k.String())
	assert.True(t, MakeKey("").IsZero())
	assert.False(t, k.IsZero())
}

func TestKeyCompareFullWidth(t *testing.T) {
	// All 64 bytes participate, so a key with trailing garbage differs
	// from its zero-padded twin.
	a := MakeKey("abc")
	b := MakeKey("abc")
	b[63] = 1
	assert.Equal(t, 0, a.Compare(MakeKey("abc")))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, MakeKey("abd").Compare(a))
}

func TestRecordOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Record
		want int
	}{
		{"equal", MakeRecord("x", "y", 1), MakeRecord("x", "y", 1), 0},
		{"first field", MakeRecord("a", "z", 9), MakeRecord("b", "a", 0), -1},
		{"second field", MakeRecord("x", "a", 9), MakeRecord("x", "b", 0), -1},
		{"tag", MakeRecord("x", "y", 1), MakeRecord("x", "y", 2), -1},
		{"tag greater", MakeRecord("x", "y", 3), MakeRecord("x", "y", 2), 1},
		{"shorter string first", MakeRecord("ab", "y", 0), MakeRecord("abc", "y", 0), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, tt.want == 0, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want < 0, tt.a.Less(tt.b))
		})
	}
}

func TestRecordCodecRoundTrip(t *testing.T) {
	r := MakeRecord("emj", "word", 4213)
	buf := make([]byte, RecordSize)
	r.EncodeTo(buf)

	got, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.True(t, r.Equal(got))
	assert.Equal(t, r, got)

	_, err = DecodeRecord(buf[:RecordSize-1])
	assert.Error(t, err)
}

func TestRecordString(t *testing.T) {
	assert.Equal(t, "e h 500", MakeRecord("e", "h", 500).String())
}
