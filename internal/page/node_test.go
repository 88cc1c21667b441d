package page

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptindex/internal/storage"
)

// The on-disk format is compatibility-critical; pin the derived
// constants so a layout change cannot slip through silently.
func TestLayoutConstants(t *testing.T) {
	assert.Equal(t, 4096, BlockSize)
	assert.Equal(t, 13, nodeHeaderSize)
	assert.Equal(t, 84, leafEntrySize)
	assert.Equal(t, 68, internalEntrySize)
	assert.Equal(t, 48, MaxLeafEntries)
	assert.Equal(t, 58, MaxInternalEntries)
}

func TestEncodePageIsExactlyOneBlock(t *testing.T) {
	n := NewLeafNode()
	n.Count = 2
	n.Leaf[0] = LeafEntry{Key: storage.MakeKey("a"), Value: storage.MakeRecord("e", "h", 1)}
	n.Leaf[1] = LeafEntry{Key: storage.MakeKey("b"), Value: storage.MakeRecord("e", "h", 2)}

	buf := make([]byte, BlockSize)
	require.NoError(t, n.EncodePage(buf))

	short := make([]byte, BlockSize-1)
	assert.Error(t, n.EncodePage(short))
	long := make([]byte, BlockSize+1)
	assert.Error(t, n.EncodePage(long))
}

func TestEncodePageFieldOffsets(t *testing.T) {
	n := NewLeafNode()
	n.Count = 1
	n.Parent = 7
	n.NextLeaf = 9
	n.Leaf[0] = LeafEntry{Key: storage.MakeKey("key"), Value: storage.MakeRecord("s1", "s2", 0x01020304)}

	buf := make([]byte, BlockSize)
	require.NoError(t, n.EncodePage(buf))

	assert.Equal(t, byte(1), buf[0], "is_leaf byte")
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[1:5]), "count")
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[5:9]), "parent")
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(buf[9:13]), "next_leaf")
	assert.Equal(t, byte('k'), buf[13], "key starts at offset 13")
	assert.Equal(t, byte('s'), buf[13+64], "value starts after the key")
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(buf[13+64+16:13+64+20]), "tag is little-endian")
}

func TestNodeCodecRoundTripLeaf(t *testing.T) {
	n := NewLeafNode()
	n.Parent = 3
	n.NextLeaf = 5
	for i := 0; i < MaxLeafEntries; i++ {
		n.Leaf[i] = LeafEntry{
			Key:   storage.MakeKey("key" + string(rune('a'+i%26))),
			Value: storage.MakeRecord("e", "h", int32(i)),
		}
		n.Count++
	}

	buf := make([]byte, BlockSize)
	require.NoError(t, n.EncodePage(buf))
	got, err := DecodePage(buf)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestNodeCodecRoundTripInternal(t *testing.T) {
	n := NewInternalNode()
	n.Count = 3
	n.Internal[0] = InternalEntry{Child: 2} // sentinel key stays zero
	n.Internal[1] = InternalEntry{Key: storage.MakeKey("m"), Child: 4}
	n.Internal[2] = InternalEntry{Key: storage.MakeKey("t"), Child: 6}

	buf := make([]byte, BlockSize)
	require.NoError(t, n.EncodePage(buf))
	got, err := DecodePage(buf)
	require.NoError(t, err)
	assert.Equal(t, n, got)
	assert.True(t, got.Internal[0].Key.IsZero())
}

func TestDecodePageMalformed(t *testing.T) {
	buf := make([]byte, BlockSize)

	buf[0] = 2 // invalid is_leaf
	_, err := DecodePage(buf)
	assert.Error(t, err)

	buf[0] = 1
	binary.LittleEndian.PutUint32(buf[1:5], uint32(MaxLeafEntries+1))
	_, err = DecodePage(buf)
	assert.Error(t, err)

	_, err = DecodePage(buf[:100])
	assert.Error(t, err)
}
