package snapshot

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/garyellow/itmo-advisor-go/internal/program"
)

// DefaultMaxBytes caps the unpacked size of a bundle.
const DefaultMaxBytes = 256 << 20

// ErrTooLarge is returned when a bundle exceeds the unpack limit.
var ErrTooLarge = errors.New("snapshot: bundle too large")

// Pack writes every *.json file of dir as a zstd-compressed tar stream and
// returns the number of files packed. Files are added in name order.
func Pack(w io.Writer, dir string) (int, error) {
	names, err := jsonFiles(dir)
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, fmt.Errorf("create encoder: %w", err)
	}
	tw := tar.NewWriter(enc)

	for _, name := range names {
		if err := addFile(tw, dir, name); err != nil {
			_ = enc.Close()
			return 0, err
		}
	}
	if err := tw.Close(); err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("close encoder: %w", err)
	}
	return len(names), nil
}

func addFile(tw *tar.Writer, dir, name string) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("tar write %s: %w", name, err)
	}
	return nil
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Unpack extracts the program files of a bundle into dir and returns the
// number written. Entries that are not flat *.json regular files are
// skipped; an entry that is not a valid program record fails the unpack
// before anything is written. maxBytes <= 0 means DefaultMaxBytes.
func Unpack(r io.Reader, dir string, maxBytes int64) (int, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	type entry struct {
		name string
		data []byte
	}
	var (
		entries []entry
		total   int64
	)
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read tar: %w", err)
		}
		name := hdr.Name
		if hdr.Typeflag != tar.TypeReg || name != filepath.Base(name) || !strings.HasSuffix(name, ".json") {
			continue
		}
		if total+hdr.Size > maxBytes {
			return 0, ErrTooLarge
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", name, err)
		}
		total += int64(len(data))
		if _, err := program.Decode(bytes.NewReader(data)); err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		entries = append(entries, entry{name: name, data: data})
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	for i, e := range entries {
		final := filepath.Join(dir, e.name)
		tmp := final + ".tmp"
		if err := os.WriteFile(tmp, e.data, 0o644); err != nil {
			return i, err
		}
		if err := os.Rename(tmp, final); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}
