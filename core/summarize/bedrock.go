// Package summarize sends organized PDFs to a hosted document-understanding
// model and stores the returned analysis next to them.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	DefaultModel  = "amazon.nova-lite-v1:0"
	DefaultRegion = "us-east-1"

	maxTokens   = 2048
	temperature = 0.2
	topP        = 0.9
)

// Prompt asks for the fields a bidder needs from an edital.
const Prompt = `Analise este documento de licitação e extraia as informações abaixo. Priorize tabelas e listas com descrição de itens, quantidades e unidades. Responda em Markdown, com uma seção para cada item. Quando uma informação não constar do documento, escreva "Não especificado".

Procure em especial o "ANEXO I - TERMO DE REFERÊNCIA" (ou "TERMO DE REFERÊNCIA"), onde costumam estar as tabelas de especificação.

1. Cidade/Município da licitação
2. Órgão ou entidade responsável
3. Objeto da licitação
4. Especificações técnicas dos itens, organizadas por lote quando houver, em tabela:
   | ITEM | DESCRIÇÃO | QUANTIDADE | UND |
   |------|-----------|------------|-----|
   Liste apenas as características principais de cada item.
5. Valores estimados ou de referência, por lote, com uma linha final de VALOR TOTAL GERAL somando todos os lotes
6. Data de abertura da licitação
7. Prazo para envio de propostas
8. Requisitos de participação
9. Critérios de julgamento das propostas

Se os dados estiverem dispersos no texto, compile-os no formato de tabela da melhor forma possível.`

// ErrEmptyResponse is returned when the model answers without text.
var ErrEmptyResponse = errors.New("model returned no text")

// converseAPI is the part of the Bedrock runtime client the analyzer uses.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockOptions configures a BedrockAnalyzer.
type BedrockOptions struct {
	Model   string
	Region  string
	Profile string // shared config profile; empty uses the default chain
	APIKey  string // Bedrock API key; empty uses regular AWS credentials
	Logger  *slog.Logger
}

// BedrockAnalyzer analyzes PDFs with the Bedrock Converse API.
type BedrockAnalyzer struct {
	client converseAPI
	model  string
	logger *slog.Logger
}

// NewBedrockAnalyzer loads AWS configuration and creates the client.
func NewBedrockAnalyzer(ctx context.Context, opts BedrockOptions) (*BedrockAnalyzer, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	if opts.APIKey != "" {
		// The SDK picks Bedrock API keys up from the environment.
		if err := os.Setenv("AWS_BEARER_TOKEN_BEDROCK", opts.APIKey); err != nil {
			return nil, fmt.Errorf("setting API key: %w", err)
		}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newBedrockAnalyzer(bedrockruntime.NewFromConfig(cfg), opts.Model, opts.Logger), nil
}

func newBedrockAnalyzer(client converseAPI, model string, logger *slog.Logger) *BedrockAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BedrockAnalyzer{client: client, model: model, logger: logger}
}

// Model returns the model identifier in use.
func (a *BedrockAnalyzer) Model() string {
	return a.model
}

// Analyze sends one PDF with the analysis prompt and returns the answer text.
func (a *BedrockAnalyzer) Analyze(ctx context.Context, pdf []byte, name string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(a.model),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberDocument{Value: types.DocumentBlock{
					Format: types.DocumentFormatPdf,
					Name:   aws.String(documentName(name)),
					Source: &types.DocumentSourceMemberBytes{Value: pdf},
				}},
				&types.ContentBlockMemberText{Value: Prompt},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(temperature),
			TopP:        aws.Float32(topP),
		},
	}

	a.logger.Debug("calling model", "model", a.model, "document", name, "bytes", len(pdf))
	out, err := a.client.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("converse with %s: %w", a.model, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	if out.Usage != nil {
		a.logger.Info("model usage", "document", name,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	return b.String(), nil
}

// documentName keeps the characters Bedrock accepts in document names:
// letters, digits, single spaces, hyphens, parentheses and brackets.
func documentName(name string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '(', r == ')', r == '[', r == ']':
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "documento"
	}
	return out
}
