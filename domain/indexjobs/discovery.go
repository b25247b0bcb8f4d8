package indexjobs

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/repolens/repolens/pkg/logger"
)

// FileInfo is one discovered candidate file.
type FileInfo struct {
	// Path is absolute.
	Path string
	Size int64
}

// DiscoverOptions control a repository walk.
type DiscoverOptions struct {
	Root            string
	IncludePatterns []string
	ExcludePatterns []string
	// MaxFileSizeBytes drops larger files from the walk entirely; 0 means
	// no cap.
	MaxFileSizeBytes int64
	// SkipPaths drops files whose absolute path is present. Incremental
	// runs pass the set of already-completed paths here.
	SkipPaths map[string]struct{}
}

// DiscoverFiles walks the repository root and returns the files a job will
// process, sorted by absolute path so every run over the same tree yields
// the same order. Patterns are doublestar globs matched against the
// slash-separated path relative to the root; an empty include list matches
// everything and an exclude match always wins. .git directories and
// symlinks are never descended into, and unreadable entries are logged and
// skipped rather than failing the walk.
func DiscoverFiles(opts DiscoverOptions, log *slog.Logger) ([]FileInfo, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", opts.Root, err)
	}

	var files []FileInfo
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warn("skipping unreadable entry", slog.String("path", path), logger.Error(err))
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		// Symlinks are skipped wholesale; following them can escape the
		// root or loop.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !matchAny(opts.IncludePatterns, rel, true) {
			return nil
		}
		if matchAny(opts.ExcludePatterns, rel, false) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			log.Warn("skipping unstattable file", slog.String("path", path), logger.Error(infoErr))
			return nil
		}
		if opts.MaxFileSizeBytes > 0 && info.Size() > opts.MaxFileSizeBytes {
			log.Debug("skipping oversized file",
				slog.String("path", path),
				slog.Int64("size_bytes", info.Size()))
			return nil
		}
		if _, done := opts.SkipPaths[path]; done {
			return nil
		}

		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	// WalkDir's traversal order is not a global lexical sort of absolute
	// paths; sort explicitly so the processing order is deterministic.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// matchAny reports whether rel matches any pattern. emptyMatches decides
// what an empty pattern list means: everything for includes, nothing for
// excludes.
func matchAny(patterns []string, rel string, emptyMatches bool) bool {
	if len(patterns) == 0 {
		return emptyMatches
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
