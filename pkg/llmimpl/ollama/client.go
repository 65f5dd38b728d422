// Package ollama provides the Ollama client implementation of llm.Client.
// Ollama is a local LLM runtime for running open-source models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"assistant/pkg/llm"
	"assistant/pkg/llmerrors"
	"assistant/pkg/tools"
)

const defaultHostURL = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.Client.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewClientWithModel creates an Ollama client for a specific model.
// hostURL is the Ollama server URL (e.g. "http://localhost:11434").
func NewClientWithModel(hostURL, model string) llm.Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(defaultHostURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements the llm.Client interface.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	if len(in.Tools) > 0 {
		req.Tools = convertToolsToOllama(in.Tools)
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	result := llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
	}

	if len(response.Message.ToolCalls) > 0 {
		result.ToolCalls = convertToolCallsFromOllama(response.Message.ToolCalls)
	}

	if result.Content == "" && len(result.ToolCalls) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama response contained no text and no tool calls")
	}

	return result, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// convertMessagesToOllama converts the message list to Ollama's Message format.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		result = append(result, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return result, nil
}

// convertToolsToOllama converts tool definitions to Ollama's Tool format.
func convertToolsToOllama(toolDefs []tools.ToolDefinition) api.Tools {
	ollamaTools := make(api.Tools, len(toolDefs))

	for i := range toolDefs {
		td := &toolDefs[i]
		properties := api.NewToolPropertiesMap()
		for name := range td.InputSchema.Properties {
			prop := td.InputSchema.Properties[name]
			properties.Set(name, convertPropertyToOllama(&prop))
		}

		ollamaTools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       td.InputSchema.Type,
					Properties: properties,
					Required:   td.InputSchema.Required,
				},
			},
		}
	}

	return ollamaTools
}

// convertPropertyToOllama converts a tool property to Ollama format.
func convertPropertyToOllama(prop *tools.Property) api.ToolProperty {
	ollamaProp := api.ToolProperty{
		Type:        api.PropertyType{prop.Type},
		Description: prop.Description,
	}

	if len(prop.Enum) > 0 {
		enumVals := make([]any, len(prop.Enum))
		for i, v := range prop.Enum {
			enumVals[i] = v
		}
		ollamaProp.Enum = enumVals
	}

	if prop.Properties != nil {
		nested := api.NewToolPropertiesMap()
		for name := range prop.Properties {
			child := prop.Properties[name]
			nested.Set(name, convertPropertyToOllama(&child))
		}
		ollamaProp.Properties = nested
	}

	if prop.Items != nil {
		ollamaProp.Items = convertPropertyToOllama(prop.Items)
	}

	return ollamaProp
}

// convertToolCallsFromOllama extracts tool calls from an Ollama response.
func convertToolCallsFromOllama(calls []api.ToolCall) []llm.ToolCall {
	result := make([]llm.ToolCall, len(calls))

	for i := range calls {
		call := &calls[i]
		// Ollama does not assign call IDs, generate positional ones.
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}

		result[i] = llm.ToolCall{
			ID:         id,
			Name:       call.Function.Name,
			Parameters: call.Function.Arguments.ToMap(),
		}
	}

	return result
}

// getStopReason converts Ollama's done_reason to the shared stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to the shared error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("Ollama server not reachable: %v", err))
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("Ollama model not found: %v", err))
	case strings.Contains(errStr, "context canceled"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("request canceled: %v", err))
	case strings.Contains(errStr, "timeout"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("request timeout: %v", err))
	default:
		return llmerrors.NewError(llmerrors.ErrorTypeUnknown, fmt.Sprintf("Ollama API error: %v", err))
	}
}
