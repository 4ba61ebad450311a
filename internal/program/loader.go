package program

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadFile decodes one program JSON file. Numbers stay json.Number.
func LoadFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads a Record from r.
func Decode(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// LoadDir loads every catalog program from dir. A program is stored as
// "{id}.json" or, as older ingestion runs wrote it, "{display name}.json".
// Missing programs are skipped with a warning; unreadable files are errors.
func LoadDir(dir string, catalog *Catalog) (map[string]Record, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	out := make(map[string]Record, len(catalog.IDs()))
	var errs []error
	for _, p := range catalog.All() {
		path, ok := findProgramFile(dir, p)
		if !ok {
			slog.Warn("Program data file not found", "program", p.ID, "dir", dir)
			continue
		}
		rec, err := LoadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		out[p.ID] = rec
	}
	return out, errors.Join(errs...)
}

func findProgramFile(dir string, p Info) (string, bool) {
	for _, name := range []string{p.ID + ".json", p.Name + ".json"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// SaveFile writes rec as indented JSON to dir/{id}.json via a temp file and rename.
func SaveFile(dir, id string, rec Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	final := filepath.Join(dir, id+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Exists reports whether dir holds any program file for the catalog.
func Exists(dir string, catalog *Catalog) bool {
	for _, p := range catalog.All() {
		if _, ok := findProgramFile(dir, p); ok {
			return true
		}
	}
	return false
}
