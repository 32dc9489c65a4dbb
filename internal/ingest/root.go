package ingest

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrEmptyStaging means a staging directory has no entries at all.
var ErrEmptyStaging = errors.New("no files found in staging directory")

// EffectiveRoot resolves the directory conversion should actually run
// on. Clients often upload a folder whose top level is one nested
// project directory; in that case the nested directory is the real
// root.
//
// Rules: zero children is an error; a single child directory becomes
// the root; with multiple children a child containing VCS metadata
// (.git) is preferred, otherwise the staging root itself is used.
func EffectiveRoot(base string) (string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", err
	}

	switch len(entries) {
	case 0:
		return "", ErrEmptyStaging
	case 1:
		if entries[0].IsDir() {
			return filepath.Join(base, entries[0].Name()), nil
		}
		return base, nil
	default:
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			child := filepath.Join(base, entry.Name())
			if _, err := os.Stat(filepath.Join(child, ".git")); err == nil {
				return child, nil
			}
		}
		return base, nil
	}
}
