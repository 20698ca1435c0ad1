package output

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBody = []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestSeedSequence(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"edital_2.pdf", "edital_10.pdf", "edital_x.pdf", "other_99.pdf", "edital_50.txt"} {
		writeFile(t, filepath.Join(dir, name), pdfBody)
	}

	seq, err := SeedSequence(dir, DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, 11, seq.Next())
	assert.Equal(t, 12, seq.Next())
}

func TestSeedSequenceEmptyAndMissing(t *testing.T) {
	seq, err := SeedSequence(t.TempDir(), DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, 1, seq.Peek())

	seq, err = SeedSequence(filepath.Join(t.TempDir(), "absent"), DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, 1, seq.Next())
}

func TestSequenceConcurrentUnique(t *testing.T) {
	seq := NewSequence(1)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := seq.Next()
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
	assert.Equal(t, 51, seq.Peek())
}

func TestOrganizeSkipsNonPDF(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	set := core.ExtractedFileSet{
		writeFile(t, filepath.Join(src, "edital.pdf"), pdfBody),
		writeFile(t, filepath.Join(src, "fake.pdf"), []byte("<html><body>not a pdf</body></html>")),
		writeFile(t, filepath.Join(src, "planilha.xlsx"), []byte("PK\x03\x04 not really")),
		writeFile(t, filepath.Join(src, "anexo"), pdfBody),
	}

	written, err := NewOrganizer(out, "", nil).Organize(set, NewSequence(1))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "edital_1.pdf"),
		filepath.Join(out, "edital_2.pdf"),
	}, written)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOrganizeNeverOverwrites(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	existing := []byte("%PDF-1.4\nexisting document seven\n%%EOF\n")
	writeFile(t, filepath.Join(out, "edital_7.pdf"), existing)

	// A stale counter pointing at a taken name must advance past it.
	seq := NewSequence(7)
	set := core.ExtractedFileSet{writeFile(t, filepath.Join(src, "novo.pdf"), pdfBody)}

	written, err := NewOrganizer(out, DefaultPrefix, nil).Organize(set, seq)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, "edital_8.pdf")}, written)

	got, err := os.ReadFile(filepath.Join(out, "edital_7.pdf"))
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	assert.Equal(t, 9, seq.Peek())
}

func TestOrganizeNoPDF(t *testing.T) {
	src := t.TempDir()
	set := core.ExtractedFileSet{writeFile(t, filepath.Join(src, "leia.txt"), []byte("instruções"))}

	_, err := NewOrganizer(t.TempDir(), "", nil).Organize(set, NewSequence(1))
	require.Error(t, err)
	assert.Equal(t, core.OrganizationError, core.KindOf(err))
	assert.Equal(t, core.ReasonNoPDF, core.ReasonOf(err))
	assert.NotErrorIs(t, err, core.ErrEnvironment)
}

func TestOrganizeWriteFailure(t *testing.T) {
	src := t.TempDir()
	set := core.ExtractedFileSet{writeFile(t, filepath.Join(src, "edital.pdf"), pdfBody)}

	// Output "directory" is a regular file.
	blocker := writeFile(t, filepath.Join(t.TempDir(), "pdfs"), []byte("x"))
	_, err := NewOrganizer(blocker, "", nil).Organize(set, NewSequence(1))
	require.Error(t, err)
	assert.Equal(t, core.OrganizationError, core.KindOf(err))
	assert.Equal(t, core.ReasonWriteFailed, core.ReasonOf(err))
}

func TestOrganizeUnreadableSource(t *testing.T) {
	set := core.ExtractedFileSet{filepath.Join(t.TempDir(), "sumiu.pdf")}

	_, err := NewOrganizer(t.TempDir(), "", nil).Organize(set, NewSequence(1))
	require.Error(t, err)
	assert.Equal(t, core.OrganizationError, core.KindOf(err))
	// Only write failures count toward aborting the batch.
	assert.Equal(t, core.ReasonReadFailed, core.ReasonOf(err))
	assert.NotErrorIs(t, err, core.ErrEnvironment)
}

func TestLayoutEnsure(t *testing.T) {
	root := t.TempDir()
	l := Layout{
		DownloadDir:  filepath.Join(root, "downloads"),
		ExtractedDir: filepath.Join(root, "extracted"),
		OutputDir:    filepath.Join(root, "pdfs"),
	}
	require.NoError(t, l.Ensure())
	assert.DirExists(t, l.DownloadDir)
	assert.DirExists(t, l.ExtractedDir)
	assert.DirExists(t, l.OutputDir)

	assert.ErrorIs(t, Layout{}.Ensure(), core.ErrEnvironment)
}

func TestRecordName(t *testing.T) {
	assert.Equal(t, "PE_81_2024", RecordName(core.Record{ID: "PE 81/2024"}, 3))
	assert.Equal(t, "record_3", RecordName(core.Record{}, 3))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"edital.pdf", "edital.pdf"},
		{"Edital Nº 81/2024.pdf", "Edital_N__81_2024.pdf"},
		{"..", "_"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), tt.in)
	}
}
