// Package archive implements the Extractor interface.
// Archives are recognized by signature, unpacked one level, and archives
// found directly inside them get exactly one more pass.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/sniff"
	"github.com/nwaples/rardecode/v2"
)

// maxEntrySize bounds a single extracted entry (zip bombs).
const maxEntrySize = 2 << 30

// FileExtractor unpacks ZIP and RAR archives.
type FileExtractor struct {
	logger *slog.Logger
}

// New creates a FileExtractor.
func New(logger *slog.Logger) *FileExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileExtractor{logger: logger}
}

// Extract returns the candidate files for path. A non-archive comes back
// unchanged as a single-element set.
func (e *FileExtractor) Extract(ctx context.Context, path string, dir string) (core.ExtractedFileSet, error) {
	format, err := sniff.ArchiveFormat(path)
	if err != nil {
		return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, err)
	}
	if format == "" {
		return core.ExtractedFileSet{path}, nil
	}

	files, err := e.unpack(path, format, dir)
	if err != nil {
		return nil, err
	}
	e.logger.Info("extracted archive", "archive", path, "format", format, "files", len(files))

	// One additional pass for archives nested directly in the first level.
	var out core.ExtractedFileSet
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nestedFormat, err := sniff.ArchiveFormat(f)
		if err != nil || nestedFormat == "" {
			out = append(out, f)
			continue
		}
		nestedDir := strings.TrimSuffix(f, filepath.Ext(f)) + "_extracted"
		nested, err := e.unpack(f, nestedFormat, nestedDir)
		if err != nil {
			return nil, err
		}
		e.logger.Info("extracted nested archive", "archive", f, "format", nestedFormat, "files", len(nested))
		out = append(out, nested...)
	}
	return out, nil
}

func (e *FileExtractor) unpack(path, format, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, core.Environmental(fmt.Errorf("creating extraction directory %s: %w", dir, err))
	}
	switch format {
	case sniff.FormatZIP:
		return unzip(path, dir)
	case sniff.FormatRAR:
		return unrar(path, dir)
	default:
		return nil, core.NewError(core.ExtractionError, core.ReasonUnsupportedArchive,
			fmt.Errorf("%s archives are not supported", format))
	}
}

func unzip(path, dir string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, fmt.Errorf("opening zip: %w", err))
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, err)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, zipEntryError(f.Name, err)
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

func unrar(path, dir string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, err)
	}
	defer file.Close()

	r, err := rardecode.NewReader(file)
	if err != nil {
		return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, fmt.Errorf("opening rar: %w", err))
	}

	var files []string
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rarEntryError(err)
		}
		if hdr.IsDir {
			continue
		}
		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, err)
		}
		if err := writeEntry(target, r); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	if len(files) == 0 {
		return nil, core.NewError(core.ExtractionError, core.ReasonCorruptArchive, errors.New("rar archive has no files"))
	}
	return files, nil
}

// writeEntry copies one archive entry to target. Read failures are archive
// corruption; write failures are environmental.
func writeEntry(target string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return core.Environmental(fmt.Errorf("creating directory for %s: %w", target, err))
	}
	out, err := os.Create(target)
	if err != nil {
		return core.Environmental(fmt.Errorf("creating %s: %w", target, err))
	}
	defer out.Close()

	n, err := io.Copy(out, &readTracker{r: io.LimitReader(src, maxEntrySize+1)})
	if err != nil {
		var rerr readError
		if errors.As(err, &rerr) {
			return core.NewError(core.ExtractionError, core.ReasonCorruptArchive,
				fmt.Errorf("reading %s: %w", filepath.Base(target), rerr.err))
		}
		return core.Environmental(fmt.Errorf("writing %s: %w", target, err))
	}
	if n > maxEntrySize {
		return core.NewError(core.ExtractionError, core.ReasonCorruptArchive,
			fmt.Errorf("entry %s exceeds %d bytes", filepath.Base(target), int64(maxEntrySize)))
	}
	return nil
}

// readError tags errors coming from the archive side of a copy.
type readError struct{ err error }

func (e readError) Error() string { return e.err.Error() }

type readTracker struct{ r io.Reader }

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		err = readError{err: err}
	}
	return n, err
}

// safeJoin rejects entry names that would escape dir.
func safeJoin(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	return target, nil
}

func zipEntryError(name string, err error) error {
	if errors.Is(err, zip.ErrAlgorithm) {
		return core.NewError(core.ExtractionError, core.ReasonUnsupportedArchive, fmt.Errorf("entry %s: %w", name, err))
	}
	return core.NewError(core.ExtractionError, core.ReasonCorruptArchive, fmt.Errorf("entry %s: %w", name, err))
}

func rarEntryError(err error) error {
	return core.NewError(core.ExtractionError, core.ReasonCorruptArchive, fmt.Errorf("reading rar: %w", err))
}
