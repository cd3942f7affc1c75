package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.json"))

	doc := map[string]int{"seed": 1}
	err := s.Load(&doc)

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"seed": 1}, doc, "missing file must leave dest untouched")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "doc.json"))

	in := map[string]any{"alice": map[string]any{"score": float64(3)}}
	require.NoError(t, s.Save(in))

	var out map[string]any
	require.NoError(t, s.Load(&out))
	assert.Equal(t, in, out)
}

func TestSaveReplacesWholeDocument(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "doc.json"))

	require.NoError(t, s.Save(map[string]int{"a": 1, "b": 2}))
	require.NoError(t, s.Save(map[string]int{"c": 3}))

	var out map[string]int
	require.NoError(t, s.Load(&out))
	assert.Equal(t, map[string]int{"c": 3}, out)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "doc.json"))
	require.NoError(t, s.Save(map[string]string{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var out map[string]int
	err := New(path).Load(&out)
	assert.Error(t, err)
}
