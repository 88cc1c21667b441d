package page

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"bptindex/internal/storage"
)

// On-disk node layout, packed with no padding:
//
//	offset 0   1 byte   is_leaf (0 or 1)
//	offset 1   4 bytes  count, signed 32-bit little-endian
//	offset 5   4 bytes  parent page id
//	offset 9   4 bytes  next_leaf page id
//	offset 13  entry region, interpreted per is_leaf
//
// A leaf entry is a 64-byte key followed by a packed Record (84 bytes
// total); an internal entry is a 64-byte key followed by a 32-bit child
// page id (68 bytes total).
const (
	nodeHeaderSize = 1 + 4 + 4 + 4

	leafEntrySize     = storage.KeySize + storage.RecordSize
	internalEntrySize = storage.KeySize + 4

	// MaxLeafEntries is the largest number of leaf entries that fit in
	// the entry region: (4096-13)/84 = 48.
	MaxLeafEntries = (BlockSize - nodeHeaderSize) / leafEntrySize

	// MaxInternalEntries is the internal fanout limit. The raw region
	// would hold 60 entries; the limit stays below that so a node always
	// has a free slot for the separator added between a child's split
	// and its own.
	MaxInternalEntries = 58
)

// LeafEntry is one key/value pair in a leaf node.
type LeafEntry struct {
	Key   storage.Key
	Value storage.Record
}

// InternalEntry routes a query: Key is the smallest key reachable through
// the Child subtree (all-zero for the leftmost sentinel).
type InternalEntry struct {
	Key   storage.Key
	Child uint32
}

// Node is the in-memory image of one page. Exactly one of the two entry
// arrays is meaningful, selected by IsLeaf; the first Count slots are
// valid. Nodes copy by assignment, which the cache relies on.
type Node struct {
	IsLeaf   bool
	Count    int32
	Parent   uint32
	NextLeaf uint32

	Leaf     [MaxLeafEntries]LeafEntry
	Internal [MaxInternalEntries]InternalEntry
}

// NewLeafNode returns an empty leaf node.
func NewLeafNode() *Node {
	return &Node{IsLeaf: true}
}

// NewInternalNode returns an empty internal node.
func NewInternalNode() *Node {
	return &Node{IsLeaf: false}
}

// Limit returns the entry limit that triggers a split for this node kind.
func (n *Node) Limit() int32 {
	if n.IsLeaf {
		return MaxLeafEntries
	}
	return MaxInternalEntries
}

// EncodePage serializes the node into buf, which must be exactly
// BlockSize bytes. Only the first Count entries of the active array are
// written; the rest of the region is zeroed.
func (n *Node) EncodePage(buf []byte) error {
	if len(buf) != BlockSize {
		return errors.Errorf("page buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	if n.Count < 0 || n.Count > n.Limit() {
		return errors.Errorf("node count %d out of range [0, %d]", n.Count, n.Limit())
	}
	for i := range buf {
		buf[i] = 0
	}
	if n.IsLeaf {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(n.Count))
	binary.LittleEndian.PutUint32(buf[5:9], n.Parent)
	binary.LittleEndian.PutUint32(buf[9:13], n.NextLeaf)

	off := nodeHeaderSize
	if n.IsLeaf {
		for i := int32(0); i < n.Count; i++ {
			e := &n.Leaf[i]
			copy(buf[off:off+storage.KeySize], e.Key[:])
			e.Value.EncodeTo(buf[off+storage.KeySize : off+leafEntrySize])
			off += leafEntrySize
		}
	} else {
		for i := int32(0); i < n.Count; i++ {
			e := &n.Internal[i]
			copy(buf[off:off+storage.KeySize], e.Key[:])
			binary.LittleEndian.PutUint32(buf[off+storage.KeySize:off+internalEntrySize], e.Child)
			off += internalEntrySize
		}
	}
	return nil
}

// DecodePage deserializes a node from buf, which must be exactly
// BlockSize bytes. A count outside the node's capacity or an is_leaf
// byte other than 0/1 is a malformed page.
func DecodePage(buf []byte) (*Node, error) {
	if len(buf) != BlockSize {
		return nil, errors.Errorf("page buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	n := &Node{}
	switch buf[0] {
	case 0:
		n.IsLeaf = false
	case 1:
		n.IsLeaf = true
	default:
		return nil, errors.Errorf("malformed page: is_leaf byte %#x", buf[0])
	}
	n.Count = int32(binary.LittleEndian.Uint32(buf[1:5]))
	n.Parent = binary.LittleEndian.Uint32(buf[5:9])
	n.NextLeaf = binary.LittleEndian.Uint32(buf[9:13])

	if n.Count < 0 || n.Count > n.Limit() {
		return nil, errors.Errorf("malformed page: count %d out of range [0, %d]", n.Count, n.Limit())
	}
	off := nodeHeaderSize
	if n.IsLeaf {
		for i := int32(0); i < n.Count; i++ {
			e := &n.Leaf[i]
			copy(e.Key[:], buf[off:off+storage.KeySize])
			v, err := storage.DecodeRecord(buf[off+storage.KeySize : off+leafEntrySize])
			if err != nil {
				return nil, errors.Wrapf(err, "leaf entry %d", i)
			}
			e.Value = v
			off += leafEntrySize
		}
	} else {
		for i := int32(0); i < n.Count; i++ {
			e := &n.Internal[i]
			copy(e.Key[:], buf[off:off+storage.KeySize])
			e.Child = binary.LittleEndian.Uint32(buf[off+storage.KeySize : off+internalEntrySize])
			off += internalEntrySize
		}
	}
	return n, nil
}
