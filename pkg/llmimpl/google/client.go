// Package google provides the Google Gemini client implementation of llm.Client.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"assistant/pkg/llm"
	"assistant/pkg/llmerrors"
	"assistant/pkg/tools"
)

// GeminiClient wraps the Google GenAI client to implement llm.Client.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClientWithModel creates a Gemini client for a specific model.
// Client creation requires a context, so it is deferred to the first Complete.
func NewGeminiClientWithModel(apiKey, model string) llm.Client {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the llm.Client interface.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	temperature := in.Temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}

	if systemInstruction != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if len(in.Tools) > 0 {
		genConfig.Tools = []*genai.Tool{
			{FunctionDeclarations: convertToolsToGemini(in.Tools)},
		}
		genConfig.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}

	if functionCalls := result.FunctionCalls(); len(functionCalls) > 0 {
		response.ToolCalls = convertFunctionCallsFromGemini(functionCalls)
		response.StopReason = "tool_use"
	}

	if response.Content == "" && len(response.ToolCalls) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Gemini response contained no text and no tool calls")
	}

	return response, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini converts the message list to Gemini's Content format.
// System messages are extracted into a separate system instruction.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var contents []*genai.Content
	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}

	return contents, strings.Join(systemParts, "\n\n"), nil
}

// convertToolsToGemini converts tool definitions to Gemini function declarations.
func convertToolsToGemini(toolDefs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(toolDefs))

	for i := range toolDefs {
		tool := &toolDefs[i]

		properties := make(map[string]*genai.Schema)
		for name := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[name]
			properties[name] = convertPropertyToGeminiSchema(&prop)
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}

	return declarations
}

// convertPropertyToGeminiSchema recursively converts a Property to Gemini schema format.
func convertPropertyToGeminiSchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{
		Description: prop.Description,
	}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertPropertyToGeminiSchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			properties := make(map[string]*genai.Schema)
			for name := range prop.Properties {
				child := prop.Properties[name]
				properties[name] = convertPropertyToGeminiSchema(&child)
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}

	return schema
}

// convertFunctionCallsFromGemini converts Gemini function calls to llm.ToolCall.
func convertFunctionCallsFromGemini(calls []*genai.FunctionCall) []llm.ToolCall {
	toolCalls := make([]llm.ToolCall, len(calls))

	for i := range calls {
		call := calls[i]
		// Gemini does not always provide call IDs; fall back to the function
		// name so responses can still be matched to calls.
		id := call.ID
		if id == "" {
			id = call.Name
		}
		toolCalls[i] = llm.ToolCall{
			ID:         id,
			Name:       call.Name,
			Parameters: call.Args,
		}
	}

	return toolCalls
}

func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apiErr.Code, "authentication failed - check API key")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apiErr.Code, "rate limit exceeded")
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apiErr.Code, "bad request - check prompt format and parameters")
		case 500, 502, 503, 504:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apiErr.Code, "server error")
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "eof"),
		strings.Contains(errStr, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(errStr, "rate"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "resource_exhausted"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(errStr, "auth"), strings.Contains(errStr, "api key"), strings.Contains(errStr, "permission"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}
