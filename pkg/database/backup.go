package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrBackupUnsupported = errors.New("backups are only supported for file based SQLite databases")

const backupTimeLayout = "2006-01-02_150405"

// BackupInfo describes one backup file on disk.
type BackupInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backup writes a consistent copy of the SQLite database into dir as
// <dbfile>.<timestamp>.bak and returns its path.
func Backup(ctx context.Context, db *DB, dir string, now time.Time) (string, error) {
	if db.Dialect != DialectSQLite || db.Path == "" {
		return "", ErrBackupUnsupported
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(db.Path), now.Format(backupTimeLayout))
	target := filepath.Join(dir, name)
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	}
	return target, nil
}

// CleanupBackups removes .bak files older than retentionDays and returns
// the removed paths, oldest first.
func CleanupBackups(dir string, retentionDays int, now time.Time) ([]string, error) {
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	var removed []string
	for _, b := range backups {
		if b.CreatedAt.Before(cutoff) {
			if err := os.Remove(b.Path); err != nil {
				return removed, fmt.Errorf("remove %s: %w", b.Path, err)
			}
			removed = append(removed, b.Path)
		}
	}
	return removed, nil
}

// ListBackups returns the backups in dir sorted by modification time.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bak") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// BackupScheduler takes a backup immediately and then every Interval,
// pruning old files after each run.
type BackupScheduler struct {
	DB            *DB
	Dir           string
	RetentionDays int
	Interval      time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// Run blocks until ctx is cancelled.
func (s *BackupScheduler) Run(ctx context.Context) {
	if s.Now == nil {
		s.Now = time.Now
	}
	s.runOnce(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupScheduler) runOnce(ctx context.Context) {
	now := s.Now()
	path, err := Backup(ctx, s.DB, s.Dir, now)
	if err != nil {
		s.Logger.Error("BackupScheduler: backup failed", zap.Error(err))
		return
	}
	s.Logger.Info("BackupScheduler: backup created", zap.String("path", path))

	removed, err := CleanupBackups(s.Dir, s.RetentionDays, now)
	if err != nil {
		s.Logger.Warn("BackupScheduler: cleanup failed", zap.Error(err))
	}
	if len(removed) > 0 {
		s.Logger.Info("BackupScheduler: old backups removed", zap.Int("count", len(removed)))
	}
}
