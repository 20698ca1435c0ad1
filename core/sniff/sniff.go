// Package sniff detects content kinds from file signatures.
// Extensions and Content-Type headers are portal-controlled, so only the
// leading bytes decide whether something is a PDF, an archive or a page.
package sniff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gaurav-prasanna/editalpipe/core"
)

// Archive formats recognized by Format.
const (
	FormatZIP = "zip"
	FormatRAR = "rar"
	Format7z  = "7z"
)

var archiveMIMEs = map[string]string{
	"application/zip":              FormatZIP,
	"application/x-rar-compressed": FormatRAR,
	"application/x-7z-compressed":  Format7z,
}

// leadingSignatures are matched at offset 0 before mimetype runs. mimetype
// accepts "%PDF-" anywhere in its read window and tests PDF before RAR and
// 7z, so a stored archive whose first entry is a PDF would pass as one.
// ZIP is left to mimetype, which tests it before PDF and tells Office
// containers apart.
var leadingSignatures = []struct {
	magic  []byte
	format string
}{
	{[]byte("Rar!\x1a\x07\x00"), FormatRAR},
	{[]byte("Rar!\x1a\x07\x01\x00"), FormatRAR},
	{[]byte("7z\xbc\xaf\x27\x1c"), Format7z},
}

const headSize = 8

// Bytes returns the content kind of data.
func Bytes(data []byte) core.ContentKind {
	if leadingArchive(data) != "" {
		return core.KindArchive
	}
	return kindOf(mimetype.Detect(data))
}

// File returns the content kind of the file at path.
func File(path string) (core.ContentKind, error) {
	format, err := ArchiveFormat(path)
	if err != nil {
		return core.KindUnknown, err
	}
	if format != "" {
		return core.KindArchive, nil
	}
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return core.KindUnknown, fmt.Errorf("sniffing %s: %w", path, err)
	}
	return kindOf(m), nil
}

// ArchiveFormat returns the archive format of the file at path, or "" if it
// is not an archive.
func ArchiveFormat(path string) (string, error) {
	head, err := readHead(path)
	if err != nil {
		return "", fmt.Errorf("sniffing %s: %w", path, err)
	}
	if format := leadingArchive(head); format != "" {
		return format, nil
	}
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("sniffing %s: %w", path, err)
	}
	return archiveFormat(m), nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	head := make([]byte, headSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return head[:n], nil
}

func leadingArchive(data []byte) string {
	for _, sig := range leadingSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format
		}
	}
	return ""
}

func kindOf(m *mimetype.MIME) core.ContentKind {
	switch {
	case archiveFormat(m) != "":
		return core.KindArchive
	case m.Is("application/pdf"):
		return core.KindPDF
	case m.Is("text/html"):
		return core.KindHTML
	default:
		return core.KindUnknown
	}
}

// archiveFormat matches the exact MIME only. Office documents are ZIP
// containers too but must not be unpacked.
func archiveFormat(m *mimetype.MIME) string {
	for mime, format := range archiveMIMEs {
		if m.Is(mime) {
			return format
		}
	}
	return ""
}
