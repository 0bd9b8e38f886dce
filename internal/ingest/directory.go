package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// sheetExtensions are the file types accepted as scanned answer sheets.
var sheetExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".pdf":  {},
}

// ListSheetFiles walks root and returns the paths of all files that look like
// scanned answer sheets, in lexical order. Hidden files and directories are
// skipped.
func ListSheetFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := sheetExtensions[ext]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning directory %s: %w", root, err)
	}

	return files, nil
}
