package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBody = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

// zipBytes builds an in-memory zip from name → content pairs, in order.
func zipBytes(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e[0])
		require.NoError(t, err)
		_, err = f.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestExtractPassThroughPDF(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "edital.zip"), pdfBody) // misleading extension

	set, err := New(nil).Extract(context.Background(), src, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, core.ExtractedFileSet{src}, set)
}

func TestExtractZipRenamedAsPDF(t *testing.T) {
	dir := t.TempDir()
	data := zipBytes(t,
		[2]string{"EDITAL.pdf", string(pdfBody)},
		[2]string{"anexos/planilha.txt", "itens"},
	)
	src := writeFile(t, filepath.Join(dir, "download.pdf"), data)
	out := filepath.Join(dir, "out")

	set, err := New(nil).Extract(context.Background(), src, out)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, filepath.Join(out, "EDITAL.pdf"), set[0])
	assert.Equal(t, filepath.Join(out, "anexos", "planilha.txt"), set[1])

	got, err := os.ReadFile(set[0])
	require.NoError(t, err)
	assert.Equal(t, pdfBody, got)
}

func TestExtractNestedArchiveOnePass(t *testing.T) {
	dir := t.TempDir()
	innermost := zipBytes(t, [2]string{"deep.pdf", string(pdfBody)})
	inner := zipBytes(t,
		[2]string{"inner.pdf", string(pdfBody)},
		[2]string{"level3.zip", string(innermost)},
	)
	outer := zipBytes(t,
		[2]string{"a.pdf", string(pdfBody)},
		[2]string{"lote.zip", string(inner)},
	)
	src := writeFile(t, filepath.Join(dir, "raw.bin"), outer)
	out := filepath.Join(dir, "out")

	set, err := New(nil).Extract(context.Background(), src, out)
	require.NoError(t, err)

	// The nested zip is replaced by its contents; the third level stays packed.
	assert.Equal(t, core.ExtractedFileSet{
		filepath.Join(out, "a.pdf"),
		filepath.Join(out, "lote_extracted", "inner.pdf"),
		filepath.Join(out, "lote_extracted", "level3.zip"),
	}, set)
}

func TestExtractCorruptZip(t *testing.T) {
	dir := t.TempDir()
	data := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0xde, 0xad}, 64)...)
	src := writeFile(t, filepath.Join(dir, "broken.zip"), data)

	_, err := New(nil).Extract(context.Background(), src, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Equal(t, core.ExtractionError, core.KindOf(err))
	assert.Equal(t, core.ReasonCorruptArchive, core.ReasonOf(err))
}

// rarStored builds a RAR5 archive with one uncompressed entry.
func rarStored(name string, data []byte) []byte {
	vint := func(n uint64) []byte { return binary.AppendUvarint(nil, n) }
	crc := func(b []byte) []byte { return binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(b)) }
	block := func(parts ...[]byte) []byte {
		body := bytes.Join(parts, nil)
		sized := append(vint(uint64(len(body))), body...)
		return append(crc(sized), sized...)
	}

	out := []byte("Rar!\x1a\x07\x01\x00")
	out = append(out, block(vint(1), vint(0), vint(0))...) // main header
	out = append(out, block(
		vint(2), vint(0x0002), vint(uint64(len(data))), // file header with data area
		vint(0x0004), vint(uint64(len(data))), vint(0o644), crc(data),
		vint(0), vint(1), // stored, unix
		vint(uint64(len(name))), []byte(name),
	)...)
	out = append(out, data...)
	return append(out, block(vint(5), vint(0), vint(0))...) // end of archive
}

func TestExtractStoredRar(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "lote.pdf"), rarStored("EDITAL 12-2024.pdf", pdfBody))
	out := filepath.Join(dir, "out")

	set, err := New(nil).Extract(context.Background(), src, out)
	require.NoError(t, err)
	require.Equal(t, core.ExtractedFileSet{filepath.Join(out, "EDITAL 12-2024.pdf")}, set)

	got, err := os.ReadFile(set[0])
	require.NoError(t, err)
	assert.Equal(t, pdfBody, got)
}

func TestExtractStoredRarInsideZip(t *testing.T) {
	dir := t.TempDir()
	data := zipBytes(t, [2]string{"anexos.rar", string(rarStored("termo.pdf", pdfBody))})
	src := writeFile(t, filepath.Join(dir, "raw.bin"), data)
	out := filepath.Join(dir, "out")

	set, err := New(nil).Extract(context.Background(), src, out)
	require.NoError(t, err)
	assert.Equal(t, core.ExtractedFileSet{filepath.Join(out, "anexos_extracted", "termo.pdf")}, set)
}

func TestExtractCorruptRar(t *testing.T) {
	dir := t.TempDir()
	data := append([]byte("Rar!\x1a\x07\x00"), bytes.Repeat([]byte{0x01}, 64)...)
	src := writeFile(t, filepath.Join(dir, "broken.pdf"), data)

	_, err := New(nil).Extract(context.Background(), src, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Equal(t, core.ExtractionError, core.KindOf(err))
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	data := zipBytes(t, [2]string{"../../escape.pdf", string(pdfBody)})
	src := writeFile(t, filepath.Join(dir, "evil.zip"), data)

	_, err := New(nil).Extract(context.Background(), src, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Equal(t, core.ExtractionError, core.KindOf(err))
	assert.NoFileExists(t, filepath.Join(dir, "escape.pdf"))
}

func TestSafeJoin(t *testing.T) {
	base := filepath.Join("extracted", "rec")
	tests := []struct {
		name string
		ok   bool
	}{
		{"edital.pdf", true},
		{"sub/dir/edital.pdf", true},
		{`windows\style.pdf`, true},
		{"../up.pdf", false},
		{"a/../../up.pdf", false},
		{".", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := safeJoin(base, tt.name)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
