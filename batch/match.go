package batch

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Pair is a zone file present in an old and a new directory. Old or New is
// empty when the file exists on one side only.
type Pair struct {
	// Name is the path relative to both directories.
	Name string `json:"name" yaml:"name"`
	Old  string `json:"old,omitempty" yaml:"old,omitempty"`
	New  string `json:"new,omitempty" yaml:"new,omitempty"`
}

// OneSided reports whether the file is missing from one of the directories.
func (p Pair) OneSided() bool {
	return p.Old == "" || p.New == ""
}

// hasExt reports whether name ends in one of exts. No extensions match all.
func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FindFiles returns the zone files under dir, relative to dir, sorted.
func FindFiles(dir string, exts []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || !hasExt(d.Name(), exts) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", dir)
	}
	slices.Sort(files)
	return files, nil
}

// MatchFiles pairs the zone files of oldDir and newDir by relative path.
// Pairs are sorted by name and include the files found on one side only.
func MatchFiles(oldDir, newDir string, exts []string) ([]Pair, error) {
	oldFiles, err := FindFiles(oldDir, exts)
	if err != nil {
		return nil, err
	}
	newFiles, err := FindFiles(newDir, exts)
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, max(len(oldFiles), len(newFiles)))
	i, j := 0, 0
	for i < len(oldFiles) || j < len(newFiles) {
		switch {
		case j == len(newFiles) || (i < len(oldFiles) && oldFiles[i] < newFiles[j]):
			pairs = append(pairs, Pair{Name: oldFiles[i], Old: filepath.Join(oldDir, oldFiles[i])})
			i++
		case i == len(oldFiles) || newFiles[j] < oldFiles[i]:
			pairs = append(pairs, Pair{Name: newFiles[j], New: filepath.Join(newDir, newFiles[j])})
			j++
		default:
			pairs = append(pairs, Pair{
				Name: oldFiles[i],
				Old:  filepath.Join(oldDir, oldFiles[i]),
				New:  filepath.Join(newDir, newFiles[j]),
			})
			i++
			j++
		}
	}
	return pairs, nil
}
