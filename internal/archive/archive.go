// Package archive reads and writes audit bundles: compressed tar archives
// capturing the inputs, output, and report of one comparison run.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// Entry names inside an audit bundle.
const (
	EntryOriginal = "original.docx"
	EntryRevised  = "revised.docx"
	EntryResult   = "result.docx"
	EntryReport   = "report.json"
)

// Entry is one file in a bundle.
type Entry struct {
	Name string
	Data []byte
}

// WriteBundle writes the entries to path as a tar archive. Compression is
// chosen from the extension: .tar.xz or .tar.gz.
func WriteBundle(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var compressor io.Closer
	switch {
	case strings.HasSuffix(path, ".tar.xz"):
		xw, err := xz.NewWriter(f)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		w = xw
		compressor = xw
	case strings.HasSuffix(path, ".tar.gz"):
		gw := gzip.NewWriter(f)
		w = gw
		compressor = gw
	default:
		return fmt.Errorf("unsupported bundle format: %s", path)
	}

	tw := tar.NewWriter(w)
	now := time.Now()
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    0644,
			Size:    int64(len(e.Data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", e.Name, err)
		}
		if _, err := tw.Write(e.Data); err != nil {
			return fmt.Errorf("write entry %s: %w", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if compressor != nil {
		if err := compressor.Close(); err != nil {
			return fmt.Errorf("close compressor: %w", err)
		}
	}
	return nil
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens a bundle, detecting .tar.xz and .tar.gz compression from
// the path.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	var reader io.Reader = f
	var decompressor io.Closer
	switch {
	case strings.HasSuffix(path, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case strings.HasSuffix(path, ".tar.gz"):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported bundle format: %s", path)
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the reader and any underlying decompressor.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Visitor is a callback for iterating bundle entries. Return true to stop.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks all entries in the bundle.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// ReadEntry reads one named entry from the bundle at path.
func ReadEntry(path, name string) ([]byte, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var content []byte
	err = r.Iterate(func(header *tar.Header, rd io.Reader) (bool, error) {
		if header.Name == name {
			var err error
			content, err = io.ReadAll(rd)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("entry not found: %s", name)
	}
	return content, nil
}

// List returns the entry names in the bundle at path.
func List(path string) ([]string, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	err = r.Iterate(func(header *tar.Header, _ io.Reader) (bool, error) {
		names = append(names, header.Name)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
