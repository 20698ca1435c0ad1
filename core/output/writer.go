// Package output handles the staging layout and final naming of PDFs.
// Final files are named <prefix><n>.pdf in a flat directory; numbers are
// never reused and existing files are never overwritten.
package output

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/sniff"
)

// DefaultPrefix is the fixed naming prefix of final PDFs.
const DefaultPrefix = "edital_"

// Layout is the three staging areas of a run.
type Layout struct {
	DownloadDir  string // raw downloads, one file per record
	ExtractedDir string // one subdirectory per record
	OutputDir    string // flat, sequentially numbered PDFs
}

// Ensure creates every staging directory.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.DownloadDir, l.ExtractedDir, l.OutputDir} {
		if dir == "" {
			return core.Environmental(errors.New("staging directory not configured"))
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return core.Environmental(fmt.Errorf("creating directory %s: %w", dir, err))
		}
	}
	return nil
}

// RecordName returns the staging name of a record: its sanitized identifier,
// or its 1-based position when the identifier is absent.
func RecordName(rec core.Record, position int) string {
	if id := Sanitize(rec.ID); id != "" {
		return id
	}
	return fmt.Sprintf("record_%d", position)
}

// Sequence hands out output numbers. It is the single point of mutation for
// numbering; callers share one Sequence per output directory.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence starts numbering at start (minimum 1).
func NewSequence(start int) *Sequence {
	if start < 1 {
		start = 1
	}
	return &Sequence{next: start}
}

// SeedSequence scans dir once and starts numbering after the highest
// existing <prefix><n>.pdf.
func SeedSequence(dir, prefix string) (*Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSequence(1), nil
		}
		return nil, core.Environmental(fmt.Errorf("scanning output directory: %w", err))
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)\.pdf$`)
	highest := 0
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return NewSequence(highest + 1), nil
}

// Next returns the next number and advances the sequence.
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}

// Peek returns the number Next would hand out.
func (s *Sequence) Peek() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Organizer copies PDFs from an extracted set into the output directory.
type Organizer struct {
	OutputDir string
	Prefix    string
	logger    *slog.Logger
}

// NewOrganizer creates an Organizer targeting outputDir.
func NewOrganizer(outputDir, prefix string, logger *slog.Logger) *Organizer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Organizer{OutputDir: outputDir, Prefix: prefix, logger: logger}
}

// Organize writes every PDF of set under the next free number from seq and
// returns the written paths. Non-PDF files are skipped, not failed.
// A set without any PDF fails with reason no-pdf.
func (o *Organizer) Organize(set core.ExtractedFileSet, seq *Sequence) ([]string, error) {
	var written []string
	for _, src := range set {
		kind, err := sniff.File(src)
		if err != nil {
			return written, core.NewError(core.OrganizationError, core.ReasonReadFailed, err)
		}
		if kind != core.KindPDF {
			o.logger.Info("skipping non-PDF file", "file", src, "kind", kind)
			continue
		}

		path, err := o.place(src, seq)
		if err != nil {
			return written, err
		}
		o.logger.Info("organized PDF", "source", src, "target", path)
		written = append(written, path)
	}
	if len(written) == 0 {
		return nil, core.NewError(core.OrganizationError, core.ReasonNoPDF,
			fmt.Errorf("none of %d file(s) is a PDF", len(set)))
	}
	return written, nil
}

// place copies src to the first free numbered name. O_EXCL makes the
// existence check and the creation one step, so a taken name is skipped
// instead of overwritten.
func (o *Organizer) place(src string, seq *Sequence) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", core.NewError(core.OrganizationError, core.ReasonReadFailed, fmt.Errorf("opening %s: %w", src, err))
	}
	defer in.Close()

	for {
		target := filepath.Join(o.OutputDir, fmt.Sprintf("%s%d.pdf", o.Prefix, seq.Next()))
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			o.logger.Warn("output name taken, advancing sequence", "target", target)
			continue
		}
		if err != nil {
			return "", writeError(fmt.Errorf("creating %s: %w", target, err))
		}

		_, copyErr := io.Copy(out, in)
		closeErr := out.Close()
		if copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			_ = os.Remove(target)
			return "", writeError(fmt.Errorf("writing %s: %w", target, copyErr))
		}
		return target, nil
	}
}

// writeError wraps a filesystem failure; a full disk is environmental
// straight away.
func writeError(err error) error {
	oe := core.NewError(core.OrganizationError, core.ReasonWriteFailed, err)
	if errors.Is(err, syscall.ENOSPC) {
		return core.Environmental(oe)
	}
	return oe
}

// Sanitize replaces characters outside [A-Za-z0-9_.-] with underscores.
func Sanitize(s string) string {
	var b []rune
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') ||
			ch == '_' || ch == '-' || ch == '.' {
			b = append(b, ch)
		} else {
			b = append(b, '_')
		}
	}
	out := string(b)
	if out == "." || out == ".." {
		return "_"
	}
	return out
}
