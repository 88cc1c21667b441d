package btree

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"bptindex/internal/page"
)

// Check walks the whole tree and the free list and verifies the
// structural invariants:
//
//  1. every non-root node holds between limit/2 (inclusive) and limit
//     (exclusive) entries; the root holds [1, M)
//  2. keys within a node are non-decreasing
//  3. the concatenation of all leaves in tree order is non-decreasing
//  4. the next_leaf chain visits every leaf exactly once, in tree order
//  5. every page id is referenced by at most one parent entry
//  6. allocated pages and free-list pages are disjoint and together
//     cover the whole file
//
// The occupancy lower bound is waived for a node whose parent has a
// single entry: with no sibling to merge with or borrow from, such a
// node legitimately drains below the threshold (the near-empty tree is
// the standing example). The stored parent field is not checked; it can
// go stale when entries move between internal nodes, and nothing routes
// through it.
//
// Returns nil, or an error naming the first violated invariant.
func (t *BPlusTree) Check() error {
	c := &checker{tree: t, seen: make(map[uint32]bool)}

	root, err := t.diskRead(t.root)
	if err != nil {
		return errors.Wrap(err, "check: read root")
	}
	if root.IsLeaf {
		return errors.Errorf("check: root page %d is a leaf", t.root)
	}
	if root.Count < 1 || root.Count >= page.MaxInternalEntries {
		return errors.Errorf("check: root count %d outside [1, %d)", root.Count, page.MaxInternalEntries)
	}
	c.seen[t.root] = true
	if err := c.walk(root, t.root, true); err != nil {
		return err
	}

	if err := c.checkLeafChain(); err != nil {
		return err
	}
	return c.checkFreeList()
}

type checker struct {
	tree   *BPlusTree
	seen   map[uint32]bool // every page id reached from the root
	leaves []uint32        // leaf pages in tree order
}

// walk recursively validates the subtree at node, recording reached
// pages and leaves.
func (c *checker) walk(node *page.Node, pageID uint32, isRoot bool) error {
	limit := node.Limit()
	if !isRoot {
		if node.Count >= limit {
			return errors.Errorf("check: page %d count %d >= limit %d", pageID, node.Count, limit)
		}
		if node.Count < 0 {
			return errors.Errorf("check: page %d negative count %d", pageID, node.Count)
		}
	}

	for i := int32(1); i < node.Count; i++ {
		var prev, cur Key
		if node.IsLeaf {
			prev, cur = node.Leaf[i-1].Key, node.Leaf[i].Key
		} else {
			prev, cur = node.Internal[i-1].Key, node.Internal[i].Key
		}
		if prev.Compare(cur) > 0 {
			return errors.Errorf("check: page %d keys out of order at entry %d", pageID, i)
		}
	}

	if node.IsLeaf {
		c.leaves = append(c.leaves, pageID)
		return nil
	}

	// A lone-entry parent has nothing to rebalance its child against, so
	// the child's lower bound is waived.
	waiveLower := node.Count == 1
	for i := int32(0); i < node.Count; i++ {
		childID := node.Internal[i].Child
		if childID == 0 {
			return errors.Errorf("check: page %d entry %d has child id 0", pageID, i)
		}
		if c.seen[childID] {
			return errors.Errorf("check: page %d referenced more than once", childID)
		}
		c.seen[childID] = true

		child, err := c.tree.diskRead(childID)
		if err != nil {
			return errors.Wrapf(err, "check: read page %d", childID)
		}
		if !waiveLower && child.Count < child.Limit()/2 {
			return errors.Errorf("check: page %d count %d below threshold %d", childID, child.Count, child.Limit()/2)
		}
		if err := c.walk(child, childID, false); err != nil {
			return err
		}
	}
	return nil
}

// checkLeafChain follows next_leaf from the leftmost leaf and verifies
// it matches the tree-order leaf sequence with globally non-decreasing
// keys.
func (c *checker) checkLeafChain() error {
	if len(c.leaves) == 0 {
		return errors.New("check: tree has no leaves")
	}
	var last *Key
	cur := c.leaves[0]
	for i := 0; ; i++ {
		if i >= len(c.leaves) {
			return errors.Errorf("check: leaf chain longer than the %d leaves in tree order", len(c.leaves))
		}
		if cur != c.leaves[i] {
			return errors.Errorf("check: leaf chain visits page %d where tree order has %d", cur, c.leaves[i])
		}
		leaf, err := c.tree.diskRead(cur)
		if err != nil {
			return errors.Wrapf(err, "check: read leaf %d", cur)
		}
		for j := int32(0); j < leaf.Count; j++ {
			k := leaf.Leaf[j].Key
			if last != nil && last.Compare(k) > 0 {
				return errors.Errorf("check: leaf %d entry %d breaks global key order", cur, j)
			}
			key := k
			last = &key
		}
		if leaf.NextLeaf == 0 {
			if i != len(c.leaves)-1 {
				return errors.Errorf("check: leaf chain ends at page %d after %d of %d leaves", cur, i+1, len(c.leaves))
			}
			return nil
		}
		cur = leaf.NextLeaf
	}
}

// checkFreeList walks the free list and verifies it is disjoint from the
// reachable pages and that together they cover every page in the file.
func (c *checker) checkFreeList() error {
	total, err := c.tree.pager.NumPages()
	if err != nil {
		return errors.Wrap(err, "check: page count")
	}

	free := make(map[uint32]bool)
	head, err := c.tree.pager.ReadInfo(page.FreeListSlot)
	if err != nil {
		return errors.Wrap(err, "check: free-list head")
	}
	for id := head; id != 0; {
		if id > total {
			return errors.Errorf("check: free list references page %d beyond file end %d", id, total)
		}
		if free[id] {
			return errors.Errorf("check: free list cycles at page %d", id)
		}
		if c.seen[id] {
			return errors.Errorf("check: page %d is both allocated and free", id)
		}
		free[id] = true
		next, err := c.tree.pager.ReadFreeNext(id)
		if err != nil {
			return errors.Wrapf(err, "check: read free page %d", id)
		}
		id = next
	}

	for id := uint32(1); id <= total; id++ {
		if !c.seen[id] && !free[id] {
			return errors.Errorf("check: page %d is neither allocated nor free", id)
		}
	}
	return nil
}

// Dump writes a page-by-page snapshot of the tree to w, one node per
// block with its entries, for debugging and the verify command.
func (t *BPlusTree) Dump(w io.Writer) error {
	root, err := t.diskRead(t.root)
	if err != nil {
		return err
	}
	return t.dumpNode(w, root, t.root, 0)
}

func (t *BPlusTree) dumpNode(w io.Writer, node *page.Node, pageID uint32, depth int) error {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	kind := "internal"
	if node.IsLeaf {
		kind = "leaf"
	}
	fmt.Fprintf(w, "%spage %d (%s) count=%d next=%d\n", indent, pageID, kind, node.Count, node.NextLeaf)
	if node.IsLeaf {
		for i := int32(0); i < node.Count; i++ {
			fmt.Fprintf(w, "%s  %q -> %s\n", indent, node.Leaf[i].Key.String(), node.Leaf[i].Value.String())
		}
		return nil
	}
	for i := int32(0); i < node.Count; i++ {
		fmt.Fprintf(w, "%s  sep %q -> page %d\n", indent, node.Internal[i].Key.String(), node.Internal[i].Child)
		child, err := t.diskRead(node.Internal[i].Child)
		if err != nil {
			return err
		}
		if err := t.dumpNode(w, child, node.Internal[i].Child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
