// Package vault stores generated and uploaded images on disk. Each image
// gets a random UUID filename so concurrent writers never collide, and the
// vault can be pruned oldest-first when it grows past a byte budget.
package vault

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Vault manages a flat directory of PNG images.
type Vault struct {
	dir string
}

// New creates a Vault rooted at dir, creating the directory if needed.
func New(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vault: failed to create directory %s: %w", dir, err)
	}
	return &Vault{dir: dir}, nil
}

// Dir returns the vault's root directory.
func (v *Vault) Dir() string {
	return v.dir
}

// Save writes raw image bytes under a fresh UUID filename and returns the
// absolute path of the stored file.
func (v *Vault) Save(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("vault: refusing to save empty image")
	}
	path := filepath.Join(v.dir, uuid.New().String()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("vault: failed to write %s: %w", path, err)
	}
	return path, nil
}

// SaveBase64 decodes a standard-base64 payload and stores it. Data-URI
// prefixes ("data:image/png;base64,") are tolerated and stripped.
func (v *Vault) SaveBase64(encoded string) (string, error) {
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("vault: invalid base64 image: %w", err)
	}
	return v.Save(data)
}

// Load reads a previously stored image back. The path must resolve inside
// the vault directory; anything else is rejected.
func (v *Vault) Load(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("vault: bad path %s: %w", path, err)
	}
	root, err := filepath.Abs(v.dir)
	if err != nil {
		return nil, fmt.Errorf("vault: bad root %s: %w", v.dir, err)
	}
	if filepath.Dir(abs) != root {
		return nil, fmt.Errorf("vault: path %s is outside the vault", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", path, err)
	}
	return data, nil
}

// Prune deletes the oldest images until the vault's total size is at or
// below maxBytes. A maxBytes of zero or less disables pruning. It returns
// the number of files removed.
func (v *Vault) Prune(maxBytes int64) (int, error) {
	if maxBytes <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return 0, fmt.Errorf("vault: failed to list %s: %w", v.dir, err)
	}

	type fileInfo struct {
		path    string
		size    int64
		modTime int64
	}
	var files []fileInfo
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(v.dir, e.Name()),
			size:    info.Size(),
			modTime: info.ModTime().UnixNano(),
		})
		total += info.Size()
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime < files[j].modTime })

	removed := 0
	for _, f := range files {
		if total <= maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			return removed, fmt.Errorf("vault: failed to prune %s: %w", f.path, err)
		}
		total -= f.size
		removed++
	}
	return removed, nil
}
