// Package bench compares the B+ tree index against a pebble-backed
// baseline under identical workloads.
package bench

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"bptindex/internal/btree"
	"bptindex/internal/storage"
)

// Index is the operation surface both backends implement.
type Index interface {
	Insert(key storage.Key, rec storage.Record) error
	Find(key storage.Key) ([]storage.Record, error)
	Delete(key storage.Key, rec storage.Record) (bool, error)
	Close() error
}

// TreeIndex adapts a BPlusTree to the Index interface.
type TreeIndex struct {
	Tree *btree.BPlusTree
}

func (t *TreeIndex) Insert(key storage.Key, rec storage.Record) error {
	return t.Tree.Insert(key, rec)
}

func (t *TreeIndex) Find(key storage.Key) ([]storage.Record, error) {
	return t.Tree.Find(key)
}

func (t *TreeIndex) Delete(key storage.Key, rec storage.Record) (bool, error) {
	return t.Tree.Remove(key, rec)
}

func (t *TreeIndex) Close() error {
	return t.Tree.Close()
}

// PebbleIndex is the LSM baseline. Each (key, record) pair is encoded
// into a single pebble key so that equal index keys form a contiguous
// range; Find scans that range. Identical pairs collapse into one entry,
// so benchmark workloads keep their pairs distinct.
type PebbleIndex struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble store rooted at dir.
func OpenPebble(dir string) (*PebbleIndex, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store %s", dir)
	}
	return &PebbleIndex{db: db}, nil
}

func encodeComposite(key storage.Key, rec storage.Record) []byte {
	buf := make([]byte, storage.KeySize+storage.RecordSize)
	copy(buf, key[:])
	rec.EncodeTo(buf[storage.KeySize:])
	return buf
}

// keyUpperBound returns the smallest byte string greater than every
// string with the given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; no upper bound
}

func (p *PebbleIndex) Insert(key storage.Key, rec storage.Record) error {
	return errors.Wrap(p.db.Set(encodeComposite(key, rec), nil, pebble.NoSync), "pebble set")
}

func (p *PebbleIndex) Find(key storage.Key) ([]storage.Record, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: key[:],
		UpperBound: keyUpperBound(key[:]),
	})
	if err != nil {
		return nil, errors.Wrap(err, "pebble iterator")
	}
	defer iter.Close()

	var out []storage.Record
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) != storage.KeySize+storage.RecordSize {
			continue
		}
		rec, err := storage.DecodeRecord(k[storage.KeySize:])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(iter.Error(), "pebble scan")
}

func (p *PebbleIndex) Delete(key storage.Key, rec storage.Record) (bool, error) {
	ck := encodeComposite(key, rec)
	if _, closer, err := p.db.Get(ck); err == pebble.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "pebble get")
	} else {
		closer.Close()
	}
	return true, errors.Wrap(p.db.Delete(ck, pebble.NoSync), "pebble delete")
}

func (p *PebbleIndex) Close() error {
	return errors.Wrap(p.db.Close(), "close pebble store")
}
