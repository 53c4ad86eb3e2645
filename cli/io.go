package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ankit-chaubey/media-preparer/core"
)

// supportedExts pre-filters directory walks. The extension only selects
// candidates; the actual format decision is made from the file contents.
var supportedExts = map[string]bool{
	".png":  true,
	".webp": true,
	".jpg":  true,
	".jpeg": true,
	".mp3":  true,
	".mp4":  true,
	".m4v":  true,
}

// collectFiles expands the argument list into concrete file paths.
// Directories require the recursive flag.
func collectFiles(args []string, recursive bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use -r to process it)", arg)
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supportedExts[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// resolveOutput maps a source path to its destination: in place when no
// output directory was given.
func resolveOutput(src, outDir string) string {
	if outDir == "" {
		return src
	}
	return filepath.Join(outDir, filepath.Base(src))
}

// replaceExt swaps the path's extension for the target format's.
func replaceExt(path string, target core.Format) string {
	ext := "." + string(target)
	if target == core.FmtJPEG {
		ext = ".jpg"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// createBackup copies the file to path.bak before an in-place write.
func createBackup(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path + ".bak")
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}
