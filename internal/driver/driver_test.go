package driver

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptindex/internal/btree"
)

func runScript(t *testing.T, script string) string {
	t.Helper()
	tree, err := btree.Open(filepath.Join(t.TempDir(), "driver.db"))
	require.NoError(t, err)
	defer tree.Close()

	var out strings.Builder
	require.NoError(t, New(tree, strings.NewReader(script), &out, nil).Run())
	return out.String()
}

func TestInsertThenFind(t *testing.T) {
	out := runScript(t, `
insert apple red sweet 1
insert apple green sour 2
insert pear green firm 3
find apple
`)
	assert.Equal(t, "green sour 2\nred sweet 1\n\n", out, "results sorted ascending, blank line terminated")
}

func TestFindMissingPrintsNull(t *testing.T) {
	out := runScript(t, "find nothing\n")
	assert.Equal(t, "null\n\n", out)
}

func TestDeleteRequiresFullMatch(t *testing.T) {
	out := runScript(t, `
insert k a b 1
delete k a b 2
find k
delete k a b 1
find k
`)
	assert.Equal(t, "a b 1\n\nnull\n\n", out)
}

func TestDeleteMissingIsSilent(t *testing.T) {
	out := runScript(t, "delete ghost a b 1\nfind ghost\n")
	assert.Equal(t, "null\n\n", out)
}

func TestLeadingRecordCountIsIgnored(t *testing.T) {
	out := runScript(t, `3
insert k a b 1
find k
find other
`)
	assert.Equal(t, "a b 1\n\nnull\n\n", out)
}

func TestFieldsAreTruncated(t *testing.T) {
	// Strings wider than 8 bytes are cut; both spellings land on the
	// same stored value.
	out := runScript(t, `
insert k longlonglong tail 1
delete k longlong tail 1
find k
`)
	assert.Equal(t, "null\n\n", out)
}

func TestUnknownCommandFails(t *testing.T) {
	tree, err := btree.Open(filepath.Join(t.TempDir(), "driver.db"))
	require.NoError(t, err)
	defer tree.Close()

	var out strings.Builder
	err = New(tree, strings.NewReader("upsert k a b 1\n"), &out, nil).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestTruncatedRecordFails(t *testing.T) {
	tree, err := btree.Open(filepath.Join(t.TempDir(), "driver.db"))
	require.NoError(t, err)
	defer tree.Close()

	var out strings.Builder
	err = New(tree, strings.NewReader("insert k a b"), &out, nil).Run()
	require.Error(t, err)
}

func TestEmptyStreamIsCleanEOF(t *testing.T) {
	out := runScript(t, "")
	assert.Empty(t, out)
}

func TestEqualStringFieldsSortByTag(t *testing.T) {
	out := runScript(t, `
insert k x y 2
insert k x y 1
insert k w z 3
find k
`)
	assert.Equal(t, "w z 3\nx y 1\nx y 2\n\n", out)
}
