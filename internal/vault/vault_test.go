package vault

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("fake png bytes")
	path, err := v.Save(data)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".png"))

	got, err := v.Load(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSaveEmptyRejected(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = v.Save(nil)
	assert.Error(t, err)
}

func TestSaveUniqueNames(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	p1, err := v.Save([]byte("a"))
	require.NoError(t, err)
	p2, err := v.Save([]byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestSaveBase64(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	raw := []byte{0x89, 'P', 'N', 'G'}
	encoded := base64.StdEncoding.EncodeToString(raw)

	path, err := v.SaveBase64(encoded)
	require.NoError(t, err)
	got, err := v.Load(path)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	path2, err := v.SaveBase64("data:image/png;base64," + encoded)
	require.NoError(t, err)
	got2, err := v.Load(path2)
	require.NoError(t, err)
	assert.Equal(t, raw, got2)

	_, err = v.SaveBase64("not base64 at all!!!")
	assert.Error(t, err)
}

func TestLoadOutsideVaultRejected(t *testing.T) {
	dir := t.TempDir()
	v, err := New(filepath.Join(dir, "vault"))
	require.NoError(t, err)

	outside := filepath.Join(dir, "secret.png")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	_, err = v.Load(outside)
	assert.Error(t, err)

	_, err = v.Load(filepath.Join(v.Dir(), "..", "secret.png"))
	assert.Error(t, err)
}

func TestPruneOldestFirst(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	payload := make([]byte, 100)
	var paths []string
	for i := 0; i < 4; i++ {
		p, err := v.Save(payload)
		require.NoError(t, err)
		// Spread mtimes so ordering is deterministic.
		ts := time.Now().Add(time.Duration(i-4) * time.Hour)
		require.NoError(t, os.Chtimes(p, ts, ts))
		paths = append(paths, p)
	}

	removed, err := v.Prune(250)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(paths[0])
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(paths[1])
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(paths[3])
	assert.NoError(t, err)
}

func TestPruneDisabled(t *testing.T) {
	v, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = v.Save([]byte("keep me"))
	require.NoError(t, err)

	removed, err := v.Prune(0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
