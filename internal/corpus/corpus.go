// Package corpus reads text corpora, one sample per line, from memory-mapped files.
package corpus

import (
	"bytes"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// File provides memory-mapped access to the lines of a text file.
type File struct {
	path string
	file *os.File
	data mmap.MMap // Nil for empty files, which can't be mapped.
}

// Open memory-maps the file at path for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open corpus file %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to stat corpus file %q", path)
	}
	cf := &File{path: path, file: f}
	if info.Size() == 0 {
		return cf, nil
	}
	cf.data, err = mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to mmap %q", path)
	}
	return cf, nil
}

// Close unmaps and closes the file.
func (f *File) Close() error {
	if f.data != nil {
		if err := f.data.Unmap(); err != nil {
			_ = f.file.Close()
			return errors.Wrapf(err, "failed to unmap %q", f.path)
		}
		f.data = nil
	}
	return errors.Wrapf(f.file.Close(), "failed to close %q", f.path)
}

// Path of the file.
func (f *File) Path() string { return f.path }

// Size of the file in bytes.
func (f *File) Size() int { return len(f.data) }

// Lines yields the lines of the file with at least minBytes bytes, without their line terminator
// ("\n" or "\r\n").
//
// The yielded strings are copies, they remain valid after the file is closed.
func (f *File) Lines(minBytes int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for line := range bytes.Lines(f.data) {
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) < minBytes {
				continue
			}
			if !yield(string(line)) {
				return
			}
		}
	}
}

// ExpandPaths replaces each directory in paths by the regular files it contains, in lexical order.
// Sub-directories and hidden files are skipped.
func ExpandPaths(paths ...string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrapf(err, "corpus path %q", path)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list corpus directory %q", path)
		}
		var dirFiles []string
		for _, entry := range entries {
			if !entry.Type().IsRegular() || entry.Name()[0] == '.' {
				continue
			}
			dirFiles = append(dirFiles, filepath.Join(path, entry.Name()))
		}
		slices.Sort(dirFiles)
		files = append(files, dirFiles...)
	}
	return files, nil
}

// ReadLines reads the lines with at least minBytes bytes from the files (or directories) in paths, in
// order. It stops after maxLines lines, if maxLines > 0.
func ReadLines(paths []string, minBytes, maxLines int) ([]string, error) {
	files, err := ExpandPaths(paths...)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, path := range files {
		if maxLines > 0 && len(lines) >= maxLines {
			break
		}
		f, err := Open(path)
		if err != nil {
			return nil, err
		}
		for line := range f.Lines(minBytes) {
			lines = append(lines, line)
			if maxLines > 0 && len(lines) >= maxLines {
				break
			}
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		klog.V(1).Infof("corpus: read %q, %d lines in total", path, len(lines))
	}
	return lines, nil
}

// Lines yields the lines with at least minBytes bytes from the files (or directories) in paths, in
// order, opening one file at a time.
//
// Errors opening or closing files are reported to onError, which may be nil, and the file is skipped.
func Lines(paths []string, minBytes int, onError func(error)) iter.Seq[string] {
	return func(yield func(string) bool) {
		report := func(err error) {
			if onError != nil {
				onError(err)
			} else {
				klog.Errorf("corpus: %+v", err)
			}
		}
		files, err := ExpandPaths(paths...)
		if err != nil {
			report(err)
			return
		}
		for _, path := range files {
			f, err := Open(path)
			if err != nil {
				report(err)
				continue
			}
			stopped := false
			for line := range f.Lines(minBytes) {
				if !yield(line) {
					stopped = true
					break
				}
			}
			if err := f.Close(); err != nil {
				report(err)
			}
			if stopped {
				return
			}
		}
	}
}
