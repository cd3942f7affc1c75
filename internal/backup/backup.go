// Package backup snapshots the bot's data directory: the karma and history
// JSON stores plus the SQLite fact database. Snapshots are timestamped
// subdirectories of the backup directory; the image vault is excluded since
// it can be large and the history ring only references recent entries.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const snapshotPrefix = "snapshot-"

// Config holds snapshot service configuration.
type Config struct {
	DataDir   string // directory holding karma.json, history.json, facts.db
	BackupDir string // where snapshots are written
	Keep      int    // snapshots to retain, oldest pruned first (default: 10)
}

// SnapshotInfo describes one existing snapshot.
type SnapshotInfo struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Snapshotter creates and prunes data-directory snapshots.
type Snapshotter struct {
	cfg Config
}

// New returns a Snapshotter. Keep defaults to 10 when unset.
func New(cfg Config) *Snapshotter {
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	return &Snapshotter{cfg: cfg}
}

// Snapshot writes a new snapshot and prunes old ones. The JSON stores are
// copied byte-for-byte; the fact database is backed up with VACUUM INTO so
// the copy is consistent even while the server is running.
func (s *Snapshotter) Snapshot() (SnapshotInfo, error) {
	if err := os.MkdirAll(s.cfg.BackupDir, 0o755); err != nil {
		return SnapshotInfo{}, fmt.Errorf("backup: failed to create backup dir: %w", err)
	}

	now := time.Now()
	dest := filepath.Join(s.cfg.BackupDir, snapshotPrefix+now.Format("20060102-150405"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return SnapshotInfo{}, fmt.Errorf("backup: failed to create snapshot dir: %w", err)
	}

	var total int64
	for _, name := range []string{"karma.json", "history.json"} {
		src := filepath.Join(s.cfg.DataDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		n, err := copyFile(src, filepath.Join(dest, name))
		if err != nil {
			return SnapshotInfo{}, fmt.Errorf("backup: failed to copy %s: %w", name, err)
		}
		total += n
	}

	dbSrc := filepath.Join(s.cfg.DataDir, "facts.db")
	if _, err := os.Stat(dbSrc); err == nil {
		dbDest := filepath.Join(dest, "facts.db")
		if err := backupSQLite(dbSrc, dbDest); err != nil {
			return SnapshotInfo{}, err
		}
		if err := verifySQLite(dbDest); err != nil {
			return SnapshotInfo{}, err
		}
		if info, err := os.Stat(dbDest); err == nil {
			total += info.Size()
		}
	}

	if err := s.prune(); err != nil {
		return SnapshotInfo{}, err
	}

	return SnapshotInfo{Path: dest, Timestamp: now, Size: total}, nil
}

// List returns existing snapshots, newest first.
func (s *Snapshotter) List() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: failed to read backup dir: %w", err)
	}

	var snapshots []SnapshotInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), snapshotPrefix) {
			continue
		}
		ts, err := time.ParseInLocation("20060102-150405",
			strings.TrimPrefix(entry.Name(), snapshotPrefix), time.Local)
		if err != nil {
			continue
		}
		path := filepath.Join(s.cfg.BackupDir, entry.Name())
		snapshots = append(snapshots, SnapshotInfo{
			Path:      path,
			Timestamp: ts,
			Size:      dirSize(path),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// Restore copies a snapshot's files back into the data directory. The
// server should not be running.
func (s *Snapshotter) Restore(snapshotPath string) error {
	entries, err := os.ReadDir(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: failed to read snapshot: %w", err)
	}
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("backup: failed to create data dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(snapshotPath, entry.Name())
		if entry.Name() == "facts.db" {
			if err := verifySQLite(src); err != nil {
				return err
			}
		}
		if _, err := copyFile(src, filepath.Join(s.cfg.DataDir, entry.Name())); err != nil {
			return fmt.Errorf("backup: failed to restore %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// prune deletes the oldest snapshots beyond the retention count.
func (s *Snapshotter) prune() error {
	snapshots, err := s.List()
	if err != nil {
		return err
	}
	if len(snapshots) <= s.cfg.Keep {
		return nil
	}
	var lastErr error
	for _, old := range snapshots[s.cfg.Keep:] {
		if err := os.RemoveAll(old.Path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("backup: failed to prune snapshots: %w", lastErr)
	}
	return nil
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Sync()
}

func dirSize(path string) int64 {
	var total int64
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
