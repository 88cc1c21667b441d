package bench

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptindex/internal/btree"
	"bptindex/internal/storage"
)

func TestRunTreeBackend(t *testing.T) {
	tree, err := btree.Open(filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)

	backends := []Backend{{Name: "bptree", Index: &TreeIndex{Tree: tree}}}
	results, err := Run(Config{N: 500, ReadPercent: 90, Seed: 1}, backends)
	require.NoError(t, err)
	require.NoError(t, backends[0].Index.Close())

	require.Len(t, results, 4, "one result per phase")
	phases := map[string]bool{}
	for _, r := range results {
		assert.Equal(t, "bptree", r.Backend)
		assert.Positive(t, r.Ops)
		phases[r.Phase] = true
	}
	assert.Equal(t, map[string]bool{"load": true, "lookup": true, "mixed": true, "delete": true}, phases)
}

func TestWorkloadLeavesIndexConsistent(t *testing.T) {
	tree, err := btree.Open(filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)
	defer tree.Close()

	_, err = Run(Config{N: 400, ReadPercent: 50, Seed: 3}, []Backend{
		{Name: "bptree", Index: &TreeIndex{Tree: tree}},
	})
	require.NoError(t, err)
	require.NoError(t, tree.Check())

	// Odd loaded keys survive the delete phase.
	values, err := tree.Find(benchKey(1))
	require.NoError(t, err)
	assert.Len(t, values, 1)
	values, err = tree.Find(benchKey(0))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestWriteCSV(t *testing.T) {
	results := []Result{
		{Backend: "bptree", Phase: "load", Ops: 10, NsPerOp: 1200},
		{Backend: "pebble", Phase: "load", Ops: 10, NsPerOp: 800},
	}
	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, results))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Backend,Phase,Ops,NsPerOp", lines[0])
	assert.Equal(t, "bptree,load,10,1200", lines[1])
	assert.Equal(t, "pebble,load,10,800", lines[2])
}

func TestKeyUpperBound(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x03}, keyUpperBound([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, keyUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, keyUpperBound([]byte{0xff, 0xff}))
}

func TestCompositeEncoding(t *testing.T) {
	key := storage.MakeKey("k")
	rec := storage.MakeRecord("a", "b", 7)
	buf := encodeComposite(key, rec)
	require.Len(t, buf, storage.KeySize+storage.RecordSize)

	got, err := storage.DecodeRecord(buf[storage.KeySize:])
	require.NoError(t, err)
	assert.True(t, rec.Equal(got))
}
