package file

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tailChunk = 4096

var errMultiline = errors.New("record line contains a line break")

// appendLine writes line and a newline at the end of path. An unterminated
// tail left by an interrupted write is cut off first. If the write or the
// flush fails the file is truncated back to its previous length.
func appendLine(path, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return errMultiline
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	size, err := repairTail(f)
	if err != nil {
		return fmt.Errorf("failed to repair %s: %w", filepath.Base(path), err)
	}

	if _, err := f.WriteAt([]byte(line+"\n"), size); err != nil {
		_ = f.Truncate(size)
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Truncate(size)
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(path), err)
	}
	return nil
}

// repairTail truncates an unterminated final line and returns the length
// of the remaining, newline-terminated prefix.
func repairTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, err
	}
	if last[0] == '\n' {
		return size, nil
	}

	cut := int64(0)
	buf := make([]byte, tailChunk)
	for end := size; end > 0; {
		start := end - tailChunk
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			cut = start + int64(i) + 1
			break
		}
		end = start
	}

	if err := f.Truncate(cut); err != nil {
		return 0, err
	}
	return cut, nil
}

// readLines returns the complete, non-empty lines of path. A missing file
// reads as empty and an unterminated tail is dropped.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	i := bytes.LastIndexByte(data, '\n')
	if i < 0 {
		return nil, nil
	}
	data = data[:i]

	var lines []string
	for _, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSuffix(ln, "\r")
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines, nil
}

// writeAtomic replaces path with data through a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// joinLines renders lines as newline-terminated file content.
func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
