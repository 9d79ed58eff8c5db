package bench

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogStore is the external append-only log collaborator. The engine only
// appends lines, reads lines back, checks existence, and rewrites a file
// whole when a missing header must be inserted.
type LogStore interface {
	AppendLine(name, line string) error
	ReadLines(name string) ([]string, error)
	Exists(name string) bool
	WriteLines(name string, lines []string) error
}

// FileStore keeps log files in one directory.
type FileStore struct {
	Dir string
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *FileStore) AppendLine(name, line string) error {
	f, err := os.OpenFile(s.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return nil
}

func (s *FileStore) ReadLines(name string) ([]string, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

func (s *FileStore) WriteLines(name string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(s.path(name), []byte(b.String()), 0o644)
}

// EnsureHeader guarantees the results file starts with exactly one header
// row: a missing file is created with the header, and a non-empty file that
// lacks it gets the header inserted above the existing rows.
func EnsureHeader(store LogStore, name string) error {
	if !store.Exists(name) {
		return store.WriteLines(name, []string{Header})
	}
	lines, err := store.ReadLines(name)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return store.WriteLines(name, []string{Header})
	}
	if lines[0] == Header {
		return nil
	}
	return store.WriteLines(name, append([]string{Header}, lines...))
}

// CountDataRows returns the number of non-header, non-empty rows, used to
// continue the run index across appended suites.
func CountDataRows(store LogStore, name string) (int, error) {
	if !store.Exists(name) {
		return 0, nil
	}
	lines, err := store.ReadLines(name)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	n := 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || l == Header {
			continue
		}
		n++
	}
	return n, nil
}
