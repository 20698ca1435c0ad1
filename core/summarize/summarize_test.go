package summarize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBody = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func textOutput(parts ...string) *bedrockruntime.ConverseOutput {
	var content []types.ContentBlock
	for _, p := range parts {
		content = append(content, &types.ContentBlockMemberText{Value: p})
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: content,
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(1200), OutputTokens: aws.Int32(300)},
	}
}

func TestBedrockAnalyzeSendsDocument(t *testing.T) {
	client := &fakeConverse{out: textOutput("## Resumo", "\n\nObjeto: papel A4")}
	a := newBedrockAnalyzer(client, DefaultModel, nil)

	text, err := a.Analyze(context.Background(), pdfBody, "edital_3")
	require.NoError(t, err)
	assert.Equal(t, "## Resumo\n\nObjeto: papel A4", text)

	in := client.input
	require.NotNil(t, in)
	assert.Equal(t, DefaultModel, aws.ToString(in.ModelId))
	require.Len(t, in.Messages, 1)
	require.Len(t, in.Messages[0].Content, 2)

	doc, ok := in.Messages[0].Content[0].(*types.ContentBlockMemberDocument)
	require.True(t, ok)
	assert.Equal(t, types.DocumentFormatPdf, doc.Value.Format)
	assert.Equal(t, "edital 3", aws.ToString(doc.Value.Name))
	src, ok := doc.Value.Source.(*types.DocumentSourceMemberBytes)
	require.True(t, ok)
	assert.Equal(t, pdfBody, src.Value)

	prompt, ok := in.Messages[0].Content[1].(*types.ContentBlockMemberText)
	require.True(t, ok)
	assert.Contains(t, prompt.Value, "TERMO DE REFERÊNCIA")
	assert.Equal(t, int32(maxTokens), aws.ToInt32(in.InferenceConfig.MaxTokens))
}

func TestBedrockAnalyzeErrors(t *testing.T) {
	a := newBedrockAnalyzer(&fakeConverse{err: errors.New("AccessDeniedException")}, DefaultModel, nil)
	_, err := a.Analyze(context.Background(), pdfBody, "edital_1")
	assert.ErrorContains(t, err, "AccessDeniedException")

	a = newBedrockAnalyzer(&fakeConverse{out: textOutput("  ")}, DefaultModel, nil)
	_, err = a.Analyze(context.Background(), pdfBody, "edital_1")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	a = newBedrockAnalyzer(&fakeConverse{out: &bedrockruntime.ConverseOutput{}}, DefaultModel, nil)
	_, err = a.Analyze(context.Background(), pdfBody, "edital_1")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "edital 12", documentName("edital_12"))
	assert.Equal(t, "Edital (2024) lote-1", documentName("Edital (2024)__lote-1"))
	assert.Equal(t, "documento", documentName("___"))
}

// fakeAnalyzer returns canned text, failing for names in fail.
type fakeAnalyzer struct {
	calls []string
	fail  map[string]bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, pdf []byte, name string) (string, error) {
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return "", errors.New("ThrottlingException")
	}
	return "## Resumo\n\n| ITEM | DESCRIÇÃO |\n|---|---|\n| 01 | Papel |\n", nil
}

func (f *fakeAnalyzer) Model() string { return "fake-model" }

func seedPDFs(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), pdfBody, 0644))
	}
}

func TestListPDFsNumericOrder(t *testing.T) {
	dir := t.TempDir()
	seedPDFs(t, dir, "edital_10.pdf", "edital_2.pdf", "edital_1.pdf", "outro.pdf", "edital_3.txt")

	paths, err := ListPDFs(dir, "edital_")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "edital_1.pdf"),
		filepath.Join(dir, "edital_2.pdf"),
		filepath.Join(dir, "edital_10.pdf"),
	}, paths)
}

func TestRunnerAnalyzesAllAndContinuesOnFailure(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "pdfs")
	out := filepath.Join(root, "summaries")
	seedPDFs(t, in, "edital_1.pdf", "edital_2.pdf", "edital_3.pdf")

	analyzer := &fakeAnalyzer{fail: map[string]bool{"edital_2": true}}
	r := NewRunner(analyzer, RunnerOptions{InputDir: in, OutputDir: out, Prefix: "edital_", PDF: true})
	r.now = func() time.Time { return time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC) }

	res, err := r.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"edital_1", "edital_2", "edital_3"}, analyzer.calls)
	assert.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed, filepath.Join(in, "edital_2.pdf"))
	assert.Equal(t, []string{
		filepath.Join(out, "analysis_edital_1.md"),
		filepath.Join(out, "analysis_edital_1.pdf"),
		filepath.Join(out, "analysis_edital_3.md"),
		filepath.Join(out, "analysis_edital_3.pdf"),
	}, res.Written)

	md, err := os.ReadFile(filepath.Join(out, "analysis_edital_1.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Análise do edital_1")
	assert.Contains(t, string(md), "Modelo: fake-model")
	assert.Contains(t, string(md), "Gerado em: 2024-11-01T12:00:00Z")
}

func TestRunnerSingleFileRelativeToInputDir(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "pdfs")
	seedPDFs(t, in, "edital_4.pdf", "edital_5.pdf")

	analyzer := &fakeAnalyzer{}
	r := NewRunner(analyzer, RunnerOptions{InputDir: in, OutputDir: filepath.Join(root, "summaries"), Prefix: "edital_"})
	res, err := r.Run(context.Background(), "edital_5.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"edital_5"}, analyzer.calls)
	assert.Equal(t, []string{filepath.Join(root, "summaries", "analysis_edital_5.md")}, res.Written)

	_, err = r.Run(context.Background(), "edital_99.pdf")
	assert.ErrorContains(t, err, "PDF file not found")
}

func TestRunnerStopsWhenCancelled(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "pdfs")
	seedPDFs(t, in, "edital_1.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := &fakeAnalyzer{}
	_, err := NewRunner(analyzer, RunnerOptions{InputDir: in, OutputDir: filepath.Join(root, "s"), Prefix: "edital_"}).Run(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, analyzer.calls)
}
