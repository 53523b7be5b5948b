// Package cacheutil manages the on-disk cache used for downloaded voice
// notes and their transcoded copies.
package cacheutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Policy bounds the cache by age, file count and total size. Zero values
// disable the corresponding bound.
type Policy struct {
	MaxAge   time.Duration
	MaxFiles int
	MaxBytes int64
}

type cacheEntry struct {
	path    string
	modTime time.Time
	size    int64
}

// EnsureDir creates dir with 0700 permissions and verifies it is a plain
// directory owned by the current user. Voice notes can carry private
// conversation content, so group/world access is refused outright.
func EnsureDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("empty cache dir")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	dir = abs

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	fi, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlink path: %s", dir)
	}
	if !fi.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return fmt.Errorf("unsupported stat for: %s", dir)
	}
	if st.Uid != uint32(os.Getuid()) {
		return fmt.Errorf("cache dir not owned by current user (uid=%d, owner=%d): %s", os.Getuid(), st.Uid, dir)
	}
	if perm := fi.Mode().Perm(); perm != 0o700 {
		if err := os.Chmod(dir, 0o700); err != nil {
			return fmt.Errorf("cache dir has insecure perms (%#o) and chmod failed: %w", perm, err)
		}
		fi2, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if fi2.Mode().Perm() != 0o700 {
			return fmt.Errorf("cache dir has insecure perms (%#o): %s", fi2.Mode().Perm(), dir)
		}
	}
	return nil
}

// Prune removes expired files, then the oldest files until the count and
// byte bounds hold. Empty subdirectories are removed afterwards.
func Prune(dir string, p Policy) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("missing cache dir")
	}
	if p.MaxAge <= 0 && p.MaxFiles <= 0 && p.MaxBytes <= 0 {
		return nil
	}
	now := time.Now()

	var kept []cacheEntry
	total := int64(0)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Never follow symlinks.
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if p.MaxAge > 0 && now.Sub(info.ModTime()) > p.MaxAge {
			_ = os.Remove(path)
			return nil
		}
		kept = append(kept, cacheEntry{path: path, modTime: info.ModTime(), size: info.Size()})
		total += info.Size()
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return walkErr
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].modTime.Before(kept[j].modTime) })
	overBudget := func() bool {
		if p.MaxFiles > 0 && len(kept) > p.MaxFiles {
			return true
		}
		if p.MaxBytes > 0 && total > p.MaxBytes {
			return true
		}
		return false
	}
	for overBudget() && len(kept) > 0 {
		oldest := kept[0]
		kept = kept[1:]
		total -= oldest.size
		_ = os.Remove(oldest.path)
	}

	var dirs []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		if filepath.Clean(d) == filepath.Clean(dir) {
			continue
		}
		_ = os.Remove(d)
	}
	return nil
}
