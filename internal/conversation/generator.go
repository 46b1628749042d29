package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
)

const (
	// DefaultModelID is the default Bedrock model for drafting.
	DefaultModelID = "anthropic.claude-haiku-4-5-20251001-v1:0"
	// DefaultMaxTokens bounds one model answer.
	DefaultMaxTokens = 1024
	// anthropicVersion is the required API version for Claude on Bedrock.
	anthropicVersion = "bedrock-2023-05-31"
)

const jsonInstruction = "\n\nRespond with a single JSON object and nothing else."

// BedrockInvoker abstracts Bedrock model invocation for dependency inversion.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewBedrockClient returns a Bedrock runtime client whose HTTP traffic is
// traced.
func NewBedrockClient(cfg aws.Config) *bedrockruntime.Client {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.HTTPClient = httpClient
	})
}

// Config holds configuration for the generator.
type Config struct {
	ModelID   string
	MaxTokens int
}

// Request is one structured generation call.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// Generator asks a Claude model on Bedrock for JSON objects.
type Generator struct {
	client    BedrockInvoker
	modelID   string
	maxTokens int
}

// NewGenerator creates a new Generator.
func NewGenerator(client BedrockInvoker, cfg Config) *Generator {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Generator{client: client, modelID: modelID, maxTokens: maxTokens}
}

// claudeRequest is the Claude Messages API request format for Bedrock.
type claudeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// GenerateObject runs req and decodes the JSON object in the answer into
// out. It returns the raw answer text. Every failure is an
// apperr.ErrCollaborator.
func (g *Generator) GenerateObject(ctx context.Context, req Request, out any) (string, error) {
	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        g.maxTokens,
		System:           req.System,
		Messages:         buildMessages(req.History, req.Prompt+jsonInstruction),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	modelID := g.modelID
	output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &modelID,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", apperr.Collaborator("invoke model", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", apperr.Collaborator("unmarshal response", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := strings.TrimSpace(text.String())

	obj, ok := extractObject(raw)
	if !ok {
		return raw, apperr.Collaborator("answer holds no JSON object", nil)
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return raw, apperr.Collaborator("decode answer", err)
	}
	return raw, nil
}

// buildMessages turns stored history and the new prompt into an
// alternating message list that starts with a user turn.
func buildMessages(history []Turn, prompt string) []message {
	msgs := make([]message, 0, len(history)+1)
	for _, turn := range history {
		if len(msgs) == 0 && turn.Role != RoleUser {
			continue
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == string(turn.Role) {
			msgs[n-1].Content += "\n\n" + turn.Content
			continue
		}
		msgs = append(msgs, message{Role: string(turn.Role), Content: turn.Content})
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == string(RoleUser) {
		msgs[n-1].Content += "\n\n" + prompt
		return msgs
	}
	return append(msgs, message{Role: string(RoleUser), Content: prompt})
}

// extractObject returns the outermost {...} span of s, which tolerates code
// fences and prose around the object.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
