package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRecords(t *testing.T) {
	recs, err := loadRecords("HTTPS://pncp.gov.br/app/editais/00394452000103/2024/81")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "HTTPS://pncp.gov.br/app/editais/00394452000103/2024/81", recs[0].Link)

	path := filepath.Join(t.TempDir(), "licitacoes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"licitacoes":[{"link":"https://a.example/1.pdf","id":"1"},{"link":"https://a.example/2.pdf"}]}`), 0644))
	recs, err = loadRecords(path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = loadRecords(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDownloadCommandDirectLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4\n%%EOF\n"))
	}))
	defer srv.Close()

	root := t.TempDir()
	conf := filepath.Join(root, "editalpipe.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(`
dirs:
  downloads: `+filepath.Join(root, "downloads")+`
  extracted: `+filepath.Join(root, "extracted")+`
  reports: `+filepath.Join(root, "reports")+`
log:
  file: `+filepath.Join(root, "editalpipe.log")+`
`), 0644))
	pdfDir := filepath.Join(root, "pdfs")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"download", srv.URL + "/edital.pdf", "--config", conf, "--pdf-dir", pdfDir})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, filepath.Join(pdfDir, "edital_1.pdf"))
	assert.Contains(t, out.String(), "[1/1] Processing")
	assert.Contains(t, out.String(), "1/1 records succeeded, 0 failed")

	reports, err := filepath.Glob(filepath.Join(root, "reports", "*.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}
