// Package fsutil locates definition files on disk.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
)

// FindByStem walks root and returns every file named stem+ext, sorted.
// A missing root yields no matches rather than an error.
func FindByStem(root, stem, ext string) ([]string, error) {
	if ext == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() && d.Name() == stem+ext {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}
