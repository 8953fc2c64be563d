package main

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// rangeDirInfo is one discovered range directory: any subtree of
// dataDir containing an rsml.log, the same marker rangectl/rangeserverd
// use to recognize a range's own storage directory.
type rangeDirInfo struct {
	Path    string
	Files   int
	Bytes   int64
	ModTime time.Time
}

// scanRangeDirs walks root looking for directories holding an
// rsml.log, summing the size of everything beneath each one found.
func scanRangeDirs(root string) ([]rangeDirInfo, error) {
	var found []rangeDirInfo

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable subtrees
		}
		if d.IsDir() || filepath.Base(path) != "rsml.log" {
			return nil
		}
		dir := filepath.Dir(path)
		info, serr := summarizeDir(dir)
		if serr != nil {
			return nil
		}
		found = append(found, info)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

func summarizeDir(dir string) (rangeDirInfo, error) {
	info := rangeDirInfo{Path: dir}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fi, ferr := d.Info()
		if ferr != nil {
			return nil
		}
		info.Files++
		info.Bytes += fi.Size()
		if fi.ModTime().After(info.ModTime) {
			info.ModTime = fi.ModTime()
		}
		return nil
	})
	return info, err
}
