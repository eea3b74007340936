package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/model"
	"google.golang.org/genai"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}

		// Filter for models that support generateContent.
		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}

		if supportsGenerate {
			maxTokens := 0
			if m.InputTokenLimit > 0 {
				maxTokens = int(m.InputTokenLimit)
			}
			models = append(models, domain.Model{
				ID:        m.Name,
				Name:      m.DisplayName,
				Provider:  "gemini",
				MaxTokens: maxTokens,
			})
		}
	}
	return models, nil
}

// Stream sends a conversation history to the LLM and returns a stream.
func (p *Provider) Stream(ctx context.Context, modelName, instructions string, messages []*domain.Message, tools []domain.ToolDecl) (model.Stream, error) {
	slog.Debug("Gemini.Stream", "model", modelName, "messageCount", len(messages), "toolCount", len(tools))

	var systemInstruction *genai.Content
	if instructions != "" {
		systemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: instructions}},
		}
	}

	// Invocation IDs map to tool names; function responses need the name back.
	toolNames := make(map[string]string)
	var contents []*genai.Content

	for _, msg := range messages {
		var parts []*genai.Part
		for _, b := range msg.Blocks {
			switch b.Type {
			case domain.BlockTypeText:
				parts = append(parts, &genai.Part{
					Text:             b.Text,
					ThoughtSignature: b.ThoughtSignature,
				})
			case domain.BlockTypeInvocation:
				if b.Invocation != nil {
					toolNames[b.Invocation.ID] = b.Invocation.Name
					parts = append(parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							Name: b.Invocation.Name,
							Args: b.Invocation.Params,
							ID:   b.Invocation.ID,
						},
						ThoughtSignature: b.ThoughtSignature,
					})
				}
			case domain.BlockTypeResult:
				if b.Result != nil {
					resp := map[string]any{"result": b.Result.Content}
					if b.Result.IsError {
						resp["error"] = true
					}
					parts = append(parts, &genai.Part{
						FunctionResponse: &genai.FunctionResponse{
							Name:     toolNames[b.Result.InvocationID],
							ID:       b.Result.InvocationID,
							Response: resp,
						},
					})
				}
			}
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	config := &genai.GenerateContentConfig{
		Tools:             buildTools(tools),
		SystemInstruction: systemInstruction,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	iter := p.client.Models.GenerateContentStream(streamCtx, modelName, contents, config)

	return &geminiStream{
		iter:   iter,
		cancel: cancel,
	}, nil
}

// buildTools converts registry declarations into genai function declarations.
func buildTools(decls []domain.ToolDecl) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}

	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toSchema(d.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fns}}
}

// toSchema converts a JSON-schema style parameter map to a genai.Schema.
func toSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := params["type"].(string); ok {
		schema.Type = schemaType(t)
	}
	if desc, ok := params["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			if m, ok := sub.(map[string]any); ok {
				schema.Properties[name] = toSchema(m)
			}
		}
	}
	if items, ok := params["items"].(map[string]any); ok {
		schema.Items = toSchema(items)
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if enum, ok := params["enum"].([]string); ok {
		schema.Enum = enum
	}
	return schema
}

func schemaType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// geminiStream wraps the Gemini streaming iterator.
type geminiStream struct {
	iter   func(yield func(*genai.GenerateContentResponse, error) bool)
	cancel context.CancelFunc
}

func (s *geminiStream) FullTurn() ([]domain.ContentBlock, error) {
	var fullText strings.Builder
	var invocations []domain.ContentBlock
	var textSignature []byte

	for resp, err := range s.iter {
		if err != nil {
			return nil, err
		}
		if resp == nil {
			continue
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					if len(part.ThoughtSignature) > 0 {
						textSignature = part.ThoughtSignature
					}
					fullText.WriteString(part.Text)
				}
				if part.FunctionCall != nil {
					fc := part.FunctionCall
					id := fc.ID
					if id == "" {
						id = "call-" + uuid.New().String()
					}
					invocations = append(invocations, domain.ContentBlock{
						Type: domain.BlockTypeInvocation,
						Invocation: &domain.ToolInvocation{
							ID:     id,
							Name:   fc.Name,
							Params: fc.Args,
						},
						ThoughtSignature: part.ThoughtSignature,
					})
				}
			}
		}
	}

	var blocks []domain.ContentBlock
	if fullText.Len() > 0 {
		blocks = append(blocks, domain.ContentBlock{
			Type:             domain.BlockTypeText,
			Text:             fullText.String(),
			ThoughtSignature: textSignature,
		})
	}
	blocks = append(blocks, invocations...)

	return blocks, nil
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}
