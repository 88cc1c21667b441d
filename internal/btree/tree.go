package btree

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bptindex/internal/page"
	"bptindex/internal/storage"
)

// Type aliases for convenience
type Key = storage.Key
type Record = storage.Record

// BPlusTree is a disk-resident B+ tree index mapping fixed-size keys to
// composite records. Duplicate keys are permitted; entries with the same
// key may end up in adjacent subtrees and the lookup path accounts for
// that.
//
// The root is always an internal node. Its page id lives in header slot 1
// of the paged file; the free-list head lives in slot 2. A single tree
// instance exclusively owns its file and cache.
type BPlusTree struct {
	pager *page.Pager
	cache *page.Cache
	root  uint32
	log   *zap.Logger
}

// Options configures a tree instance.
type Options struct {
	// CacheCapacity bounds the page cache; non-positive means
	// page.DefaultCacheCapacity.
	CacheCapacity int
	// Logger receives lifecycle and page-traffic events; nil means no-op.
	Logger *zap.Logger
}

// Open opens (or creates) the index file at path with default options.
func Open(path string) (*BPlusTree, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens (or creates) the index file at path. A zero root
// in the file header means a fresh file, in which case the empty tree
// skeleton is built: one empty leaf under an internal root carrying the
// all-zero sentinel separator.
func OpenWithOptions(path string, opts Options) (*BPlusTree, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pager, err := page.OpenPager(path, log)
	if err != nil {
		return nil, err
	}
	t := &BPlusTree{
		pager: pager,
		cache: page.NewCache(opts.CacheCapacity),
		log:   log,
	}

	root, err := pager.ReadInfo(page.RootSlot)
	if err != nil {
		pager.Close()
		return nil, err
	}
	if root == 0 {
		if err := t.initialize(); err != nil {
			pager.Close()
			return nil, err
		}
	} else {
		t.root = root
	}
	return t, nil
}

// initialize builds the empty tree skeleton in a fresh file.
func (t *BPlusTree) initialize() error {
	leaf := page.NewLeafNode()
	leafPage, err := t.diskAlloc(leaf)
	if err != nil {
		return errors.Wrap(err, "initialize tree: alloc leaf")
	}

	root := page.NewInternalNode()
	root.Count = 1
	root.Internal[0] = page.InternalEntry{Child: leafPage} // all-zero sentinel key
	rootPage, err := t.diskAlloc(root)
	if err != nil {
		return errors.Wrap(err, "initialize tree: alloc root")
	}

	leaf.Parent = rootPage
	if err := t.diskWrite(leaf, leafPage); err != nil {
		return errors.Wrap(err, "initialize tree: rewrite leaf")
	}

	if err := t.pager.WriteInfo(page.RootSlot, rootPage); err != nil {
		return err
	}
	if err := t.pager.WriteInfo(page.FreeListSlot, 0); err != nil {
		return err
	}
	t.root = rootPage
	t.log.Info("initialized empty tree", zap.Uint32("root", rootPage), zap.Uint32("leaf", leafPage))
	return nil
}

// RootPage returns the current root page id.
func (t *BPlusTree) RootPage() uint32 {
	return t.root
}

// CacheStats returns the page cache counters.
func (t *BPlusTree) CacheStats() page.CacheStats {
	return t.cache.Stats()
}

// NumPages returns the file's page count, free or allocated.
func (t *BPlusTree) NumPages() (uint32, error) {
	return t.pager.NumPages()
}

// Close flushes the file and releases it.
func (t *BPlusTree) Close() error {
	if err := t.pager.Sync(); err != nil {
		return err
	}
	return t.pager.Close()
}

// -----------------------------
// Page traffic helpers
// -----------------------------

// diskRead returns the node stored at id, consulting the cache first.
// The returned node is a private copy the caller may mutate.
func (t *BPlusTree) diskRead(id uint32) (*page.Node, error) {
	if n, ok := t.cache.Get(id); ok {
		return n, nil
	}
	buf := make([]byte, page.BlockSize)
	if err := t.pager.ReadPage(id, buf); err != nil {
		return nil, err
	}
	n, err := page.DecodePage(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "decode page %d", id)
	}
	t.cache.Put(id, n)
	return n, nil
}

// diskWrite writes the node to page id and refreshes the cache entry.
// The pager write always happens, so the cache is never the sole
// authority for a page.
func (t *BPlusTree) diskWrite(n *page.Node, id uint32) error {
	buf := make([]byte, page.BlockSize)
	if err := n.EncodePage(buf); err != nil {
		return errors.Wrapf(err, "encode page %d", id)
	}
	if err := t.pager.WritePage(id, buf); err != nil {
		return err
	}
	t.cache.Put(id, n)
	return nil
}

// diskAlloc allocates a page for the node and populates the cache, so a
// freed id lingering in the cache is overwritten on reuse.
func (t *BPlusTree) diskAlloc(n *page.Node) (uint32, error) {
	buf := make([]byte, page.BlockSize)
	if err := n.EncodePage(buf); err != nil {
		return 0, errors.Wrap(err, "encode new page")
	}
	id, err := t.pager.AllocPage(buf)
	if err != nil {
		return 0, err
	}
	t.cache.Put(id, n)
	return id, nil
}

// diskFree returns the page to the free list. The cache entry is left in
// place; it is overwritten when alloc reuses the id.
func (t *BPlusTree) diskFree(id uint32) error {
	return t.pager.FreePage(id)
}

// -----------------------------
// Insert
// -----------------------------

// Insert adds a (key, record) pair. Duplicates are permitted: inserting
// an identical pair twice stores it twice.
func (t *BPlusTree) Insert(key Key, rec Record) error {
	root, err := t.diskRead(t.root)
	if err != nil {
		return errors.Wrap(err, "insert: read root")
	}
	if err := t.insertInto(root, t.root, key, rec); err != nil {
		return err
	}

	// Grow the tree if the root overflowed.
	if root.Count >= page.MaxInternalEntries {
		if err := t.growRoot(root); err != nil {
			return errors.Wrap(err, "insert: grow root")
		}
	}
	return nil
}

// insertInto descends to the target leaf and inserts, splitting any child
// that overflowed on the way back up. node is the caller's working copy
// of the page at pageID and is mutated in place so the caller observes
// the post-insert count.
func (t *BPlusTree) insertInto(node *page.Node, pageID uint32, key Key, rec Record) error {
	if node.IsLeaf {
		// Shift larger entries right; duplicates append after the run of
		// equal keys because the scan stops at the first key <= new key.
		j := node.Count - 1
		for ; j >= 0; j-- {
			if key.Compare(node.Leaf[j].Key) >= 0 {
				break
			}
			node.Leaf[j+1] = node.Leaf[j]
		}
		node.Leaf[j+1] = page.LeafEntry{Key: key, Value: rec}
		node.Count++
		return t.diskWrite(node, pageID)
	}

	// Rightmost entry with key <= insert key; index 0 (the sentinel)
	// catches keys below every separator.
	i := searchLastLessOrEqual(node, key)

	childPage := node.Internal[i].Child
	child, err := t.diskRead(childPage)
	if err != nil {
		return err
	}
	if err := t.insertInto(child, childPage, key, rec); err != nil {
		return err
	}

	if child.Count >= child.Limit() {
		if err := t.splitChild(node, pageID, child, childPage, i); err != nil {
			return err
		}
	}
	return nil
}

// splitChild splits the overflowing child at entry index i of node,
// moving the upper half into a fresh right sibling and inserting the
// separator (the sibling's first key) at i+1.
func (t *BPlusTree) splitChild(node *page.Node, pageID uint32, child *page.Node, childPage uint32, i int32) error {
	limit := child.Limit()
	half := limit / 2

	sibling := &page.Node{IsLeaf: child.IsLeaf, Parent: child.Parent}
	if child.IsLeaf {
		sibling.NextLeaf = child.NextLeaf
		for j := half; j < child.Count; j++ {
			sibling.Leaf[sibling.Count] = child.Leaf[j]
			sibling.Count++
		}
	} else {
		for j := half; j < child.Count; j++ {
			sibling.Internal[sibling.Count] = child.Internal[j]
			sibling.Count++
		}
	}
	siblingPage, err := t.diskAlloc(sibling)
	if err != nil {
		return errors.Wrap(err, "split: alloc sibling")
	}

	child.Count = half
	if child.IsLeaf {
		// Splice the sibling into the leaf chain. Internal nodes never
		// participate in the chain, so the link is leaf-only.
		child.NextLeaf = siblingPage
	}
	if err := t.diskWrite(child, childPage); err != nil {
		return err
	}

	var separator Key
	if child.IsLeaf {
		separator = sibling.Leaf[0].Key
	} else {
		separator = sibling.Internal[0].Key
	}
	for j := node.Count - 1; j > i; j-- {
		node.Internal[j+1] = node.Internal[j]
	}
	node.Internal[i+1] = page.InternalEntry{Key: separator, Child: siblingPage}
	node.Count++
	return t.diskWrite(node, pageID)
}

// growRoot splits an overflowed root and installs a new root above the
// two halves, updating header slot 1.
func (t *BPlusTree) growRoot(root *page.Node) error {
	newChild := page.NewInternalNode()
	newChildPage, err := t.diskAlloc(newChild)
	if err != nil {
		return err
	}

	for j := int32(page.MaxInternalEntries / 2); j < root.Count; j++ {
		newChild.Internal[newChild.Count] = root.Internal[j]
		newChild.Count++
		root.Internal[j] = page.InternalEntry{} // zero the vacated slot
	}
	root.Count = page.MaxInternalEntries / 2

	newRoot := page.NewInternalNode()
	newRoot.Count = 2
	newRoot.Internal[0] = page.InternalEntry{Key: root.Internal[0].Key, Child: t.root}
	newRoot.Internal[1] = page.InternalEntry{Key: newChild.Internal[0].Key, Child: newChildPage}
	newRootPage, err := t.diskAlloc(newRoot)
	if err != nil {
		return err
	}

	oldRootPage := t.root
	t.root = newRootPage

	root.Parent = newRootPage
	if err := t.diskWrite(root, oldRootPage); err != nil {
		return err
	}
	newChild.Parent = newRootPage
	if err := t.diskWrite(newChild, newChildPage); err != nil {
		return err
	}
	if err := t.pager.WriteInfo(page.RootSlot, newRootPage); err != nil {
		return err
	}
	t.log.Debug("root split",
		zap.Uint32("old_root", oldRootPage),
		zap.Uint32("new_root", newRootPage),
		zap.Uint32("new_child", newChildPage))
	return nil
}

// -----------------------------
// Remove
// -----------------------------

// Remove deletes the first leaf entry whose key and record both match.
// Returns whether an entry was removed; a miss is not an error.
func (t *BPlusTree) Remove(key Key, rec Record) (bool, error) {
	root, err := t.diskRead(t.root)
	if err != nil {
		return false, errors.Wrap(err, "remove: read root")
	}
	removed, err := t.removeFrom(root, t.root, key, rec)
	if err != nil {
		return removed, err
	}

	// Shrink the tree if the root is down to a single internal child.
	// A single leaf child stays: the root is always internal.
	if root.Count == 1 {
		childPage := root.Internal[0].Child
		child, err := t.diskRead(childPage)
		if err != nil {
			return removed, errors.Wrap(err, "remove: read root child")
		}
		if !child.IsLeaf {
			if err := t.diskFree(t.root); err != nil {
				return removed, errors.Wrap(err, "remove: free old root")
			}
			oldRoot := t.root
			t.root = childPage
			if err := t.pager.WriteInfo(page.RootSlot, childPage); err != nil {
				return removed, err
			}
			child.Parent = 0
			if err := t.diskWrite(child, childPage); err != nil {
				return removed, err
			}
			t.log.Debug("root collapsed", zap.Uint32("old_root", oldRoot), zap.Uint32("new_root", childPage))
		}
	}
	return removed, nil
}

// removeFrom removes exactly one matching entry from the subtree rooted
// at node. Equal keys may span adjacent subtrees, so the scan walks every
// child whose separator is <= key until one removal succeeds; the call
// returns right after rebalancing that child.
func (t *BPlusTree) removeFrom(node *page.Node, pageID uint32, key Key, rec Record) (bool, error) {
	if node.IsLeaf {
		j := int32(0)
		for ; j < node.Count; j++ {
			if key.Compare(node.Leaf[j].Key) == 0 && node.Leaf[j].Value.Equal(rec) {
				break
			}
		}
		if j == node.Count {
			return false, nil
		}
		for k := j; k < node.Count-1; k++ {
			node.Leaf[k] = node.Leaf[k+1]
		}
		node.Count--
		if err := t.diskWrite(node, pageID); err != nil {
			return false, err
		}
		return true, nil
	}

	// Rightmost entry with key strictly below the target, then scan
	// forward through every candidate subtree.
	i := searchLastLess(node, key)
	for ; i < node.Count && key.Compare(node.Internal[i].Key) >= 0; i++ {
		childPage := node.Internal[i].Child
		child, err := t.diskRead(childPage)
		if err != nil {
			return false, err
		}
		removed, err := t.removeFrom(child, childPage, key, rec)
		if err != nil {
			return false, err
		}
		if !removed {
			continue
		}
		if child.Count < child.Limit()/2 && node.Count > 1 {
			if err := t.rebalance(node, pageID, child, childPage, i); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return false, nil
}

// rebalance restores the occupancy bound of the underflowing child at
// entry index i of node by merging with or borrowing from an adjacent
// sibling: the left one when it exists, the right one otherwise.
func (t *BPlusTree) rebalance(node *page.Node, pageID uint32, child *page.Node, childPage uint32, i int32) error {
	var siblingPage uint32
	if i > 0 {
		siblingPage = node.Internal[i-1].Child
	} else {
		siblingPage = node.Internal[i+1].Child
	}
	sibling, err := t.diskRead(siblingPage)
	if err != nil {
		return err
	}

	// Strictly below the limit: a merged node at exactly the limit could
	// not absorb its next insertion, since entries are placed before the
	// parent splits and a full page has no spare slot.
	if sibling.Count+child.Count < child.Limit() {
		return t.merge(node, pageID, child, childPage, sibling, siblingPage, i)
	}
	return t.borrow(node, pageID, child, childPage, sibling, siblingPage, i)
}

// merge combines child and sibling into one node and drops the emptied
// entry from node, freeing the vacated page.
func (t *BPlusTree) merge(node *page.Node, pageID uint32, child *page.Node, childPage uint32, sibling *page.Node, siblingPage uint32, i int32) error {
	if i > 0 {
		// Append child onto its left sibling and free the child.
		if child.IsLeaf {
			for j := int32(0); j < child.Count; j++ {
				sibling.Leaf[sibling.Count] = child.Leaf[j]
				sibling.Count++
			}
			sibling.NextLeaf = child.NextLeaf
		} else {
			for j := int32(0); j < child.Count; j++ {
				sibling.Internal[sibling.Count] = child.Internal[j]
				sibling.Count++
			}
		}
		if err := t.diskWrite(sibling, siblingPage); err != nil {
			return err
		}
		for j := i; j < node.Count-1; j++ {
			node.Internal[j] = node.Internal[j+1]
		}
		node.Count--
		if err := t.diskWrite(node, pageID); err != nil {
			return err
		}
		return t.diskFree(childPage)
	}

	// Leftmost child: append the right sibling onto it and free the
	// sibling.
	if child.IsLeaf {
		for j := int32(0); j < sibling.Count; j++ {
			child.Leaf[child.Count] = sibling.Leaf[j]
			child.Count++
		}
		child.NextLeaf = sibling.NextLeaf
	} else {
		for j := int32(0); j < sibling.Count; j++ {
			child.Internal[child.Count] = sibling.Internal[j]
			child.Count++
		}
	}
	if err := t.diskWrite(child, childPage); err != nil {
		return err
	}
	for j := i + 1; j < node.Count-1; j++ {
		node.Internal[j] = node.Internal[j+1]
	}
	node.Count--
	if err := t.diskWrite(node, pageID); err != nil {
		return err
	}
	return t.diskFree(siblingPage)
}

// borrow moves one entry from the sibling into the underflowing child
// and refreshes the separator between them.
func (t *BPlusTree) borrow(node *page.Node, pageID uint32, child *page.Node, childPage uint32, sibling *page.Node, siblingPage uint32, i int32) error {
	if i > 0 {
		// Take the left sibling's last entry as the child's new first.
		if child.IsLeaf {
			for j := child.Count - 1; j >= 0; j-- {
				child.Leaf[j+1] = child.Leaf[j]
			}
			child.Leaf[0] = sibling.Leaf[sibling.Count-1]
			child.Count++
			sibling.Count--
			node.Internal[i].Key = child.Leaf[0].Key
		} else {
			for j := child.Count - 1; j >= 0; j-- {
				child.Internal[j+1] = child.Internal[j]
			}
			child.Internal[0] = sibling.Internal[sibling.Count-1]
			child.Count++
			sibling.Count--
			node.Internal[i].Key = child.Internal[0].Key
		}
	} else {
		// Take the right sibling's first entry as the child's new last.
		if child.IsLeaf {
			child.Leaf[child.Count] = sibling.Leaf[0]
			child.Count++
			for j := int32(1); j < sibling.Count; j++ {
				sibling.Leaf[j-1] = sibling.Leaf[j]
			}
			sibling.Count--
			node.Internal[i+1].Key = sibling.Leaf[0].Key
		} else {
			child.Internal[child.Count] = sibling.Internal[0]
			child.Count++
			for j := int32(1); j < sibling.Count; j++ {
				sibling.Internal[j-1] = sibling.Internal[j]
			}
			sibling.Count--
			node.Internal[i+1].Key = sibling.Internal[0].Key
		}
	}
	if err := t.diskWrite(child, childPage); err != nil {
		return err
	}
	if err := t.diskWrite(sibling, siblingPage); err != nil {
		return err
	}
	return t.diskWrite(node, pageID)
}

// -----------------------------
// Find
// -----------------------------

// Find returns every record stored under key, in in-tree traversal order.
func (t *BPlusTree) Find(key Key) ([]Record, error) {
	root, err := t.diskRead(t.root)
	if err != nil {
		return nil, errors.Wrap(err, "find: read root")
	}
	var out []Record
	if err := t.findInto(root, key, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// findInto collects matches from every subtree whose separator is <= key.
// Starting at the rightmost strictly-less separator covers runs of equal
// keys that straddle a split boundary.
func (t *BPlusTree) findInto(node *page.Node, key Key, out *[]Record) error {
	if node.Count == 0 {
		return nil
	}
	if node.IsLeaf {
		for i := int32(0); i < node.Count; i++ {
			if key.Compare(node.Leaf[i].Key) == 0 {
				*out = append(*out, node.Leaf[i].Value)
			}
		}
		return nil
	}

	i := searchLastLess(node, key)
	for ; i < node.Count && key.Compare(node.Internal[i].Key) >= 0; i++ {
		child, err := t.diskRead(node.Internal[i].Child)
		if err != nil {
			return err
		}
		if err := t.findInto(child, key, out); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------
// Child selection
// -----------------------------

// searchLastLessOrEqual returns the index of the rightmost internal entry
// whose key is <= target, or 0 when every separator is greater (the
// sentinel entry routes those).
func searchLastLessOrEqual(node *page.Node, target Key) int32 {
	left, right, pos := int32(0), node.Count-1, int32(0)
	for left <= right {
		mid := (left + right) / 2
		if target.Compare(node.Internal[mid].Key) >= 0 {
			pos = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return pos
}

// searchLastLess returns the index of the rightmost internal entry whose
// key is strictly < target, or 0 when there is none. Remove and find
// start here and scan forward through every separator <= target.
func searchLastLess(node *page.Node, target Key) int32 {
	left, right, pos := int32(0), node.Count-1, int32(0)
	for left <= right {
		mid := (left + right) / 2
		if target.Compare(node.Internal[mid].Key) > 0 {
			pos = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return pos
}
