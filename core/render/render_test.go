package render

import (
	"bytes"
	"testing"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const analysis = `## Resumo do Edital

**Cidade:** Joinville/SC
**Órgão:** Prefeitura Municipal de Joinville

### Especificações Técnicas

| Item | Descrição | Qtd | Valor Unitário |
|------|-----------|-----|----------------|
| 1 | Papel A4 75g/m² | 500 | R$ 24,90 |
| 2 | Caneta esferográfica azul | 1000 | R$ 1,35 |

- Abertura: 05/11/2024 às 09h
- Critério de julgamento: *menor preço* por item

1. Habilitação jurídica
2. Regularidade fiscal
`

var meta = core.DocumentMeta{
	Source:      "edital_3.pdf",
	Title:       "Análise do edital_3",
	Model:       "amazon.nova-lite-v1:0",
	GeneratedAt: "2024-11-01T12:00:00Z",
}

func TestMarkdownRenderer(t *testing.T) {
	r := NewMarkdownRenderer()
	out, err := r.Render(analysis, meta)
	require.NoError(t, err)
	assert.Equal(t, ".md", r.Extension())

	text := string(out)
	assert.True(t, bytes.HasPrefix(out, []byte("# Análise do edital_3\n\n")))
	assert.Contains(t, text, "> Fonte: edital_3.pdf | Modelo: amazon.nova-lite-v1:0 | Gerado em: 2024-11-01T12:00:00Z")
	assert.Contains(t, text, "| 1 | Papel A4 75g/m² | 500 | R$ 24,90 |")
}

func TestMarkdownRendererWithoutMeta(t *testing.T) {
	out, err := NewMarkdownRenderer().Render("  texto  \n", core.DocumentMeta{})
	require.NoError(t, err)
	assert.Equal(t, "texto\n", string(out))
}

func TestPDFRenderer(t *testing.T) {
	r := NewPDFRenderer()
	out, err := r.Render(analysis, meta)
	require.NoError(t, err)
	assert.Equal(t, ".pdf", r.Extension())
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Greater(t, len(out), 500)
}

func TestTableHelpers(t *testing.T) {
	assert.Equal(t, []string{"Item", "Descrição", "Qtd"}, tableCells("| Item | Descrição | Qtd |"))
	assert.True(t, isSeparatorRow(tableCells("|------|:---:|---:|")))
	assert.False(t, isSeparatorRow(tableCells("| 1 | -- | 3 |")))
}

func TestCleanInlineMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**Cidade:** Joinville", "Cidade: Joinville"},
		{"valor em `R$`", "valor em R$"},
		{"[PNCP](https://pncp.gov.br)", "PNCP"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanInlineMarkdown(tt.in))
	}
}
