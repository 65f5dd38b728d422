// Package openai provides the OpenAI client implementation of llm.Client
// using the official OpenAI Go package.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"assistant/pkg/config"
	"assistant/pkg/llm"
	"assistant/pkg/llmerrors"
	"assistant/pkg/tools"
)

// Client wraps the official OpenAI Go client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates an OpenAI client with the default model (raw client,
// middleware applied at a higher level).
func NewClient(apiKey string) llm.Client {
	return NewClientWithModel(apiKey, config.DefaultOpenAIModel)
}

// NewClientWithModel creates an OpenAI client for a specific model.
func NewClientWithModel(apiKey, model string) llm.Client {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: client,
		model:  model,
	}
}

// convertPropertyToSchema recursively converts a Property to OpenAI schema format.
func convertPropertyToSchema(prop *tools.Property) map[string]any {
	schema := map[string]any{
		"type":        prop.Type,
		"description": prop.Description,
	}

	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}

	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}

	if prop.Type == "object" && prop.Properties != nil {
		properties := make(map[string]any)
		for name := range prop.Properties {
			child := prop.Properties[name]
			properties[name] = convertPropertyToSchema(&child)
		}
		schema["properties"] = properties
	}

	return schema
}

// Complete implements the llm.Client interface using the Responses API.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	// The Responses API takes a single input string. Fold the conversation
	// into one transcript with role prefixes.
	var inputText strings.Builder
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&inputText, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&inputText, "Assistant: %s\n\n", msg.Content)
		default:
			inputText.WriteString(msg.Content)
			inputText.WriteString("\n\n")
		}
	}

	// Cap MaxTokens to the model's actual limit to prevent API errors.
	maxTokens := in.MaxTokens
	if info, exists := config.KnownModels[o.model]; exists && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		maxTokens = info.MaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Temperature:     openai.Float(float64(in.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText.String())},
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			properties := make(map[string]any)
			for name := range tool.InputSchema.Properties {
				prop := tool.InputSchema.Properties[name]
				properties[name] = convertPropertyToSchema(&prop)
			}

			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": properties,
						"required":   tool.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()

		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				// Unparseable arguments mean the call is unusable, skip it.
				continue
			}
		}

		toolCalls = append(toolCalls, llm.ToolCall{
			ID:         call.ID,
			Name:       call.Name,
			Parameters: args,
		})
	}

	content := resp.OutputText()
	if content == "" && len(toolCalls) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response contained no text and no tool calls")
	}

	return llm.CompletionResponse{
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
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

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apiErr.StatusCode, "authentication failed - check API key")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apiErr.StatusCode, "rate limit exceeded")
		case 400, 404, 422:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apiErr.StatusCode, "bad request - check prompt format and parameters")
		case 500, 502, 503, 504:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apiErr.StatusCode, "server error")
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "eof"),
		strings.Contains(errStr, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(errStr, "rate"), strings.Contains(errStr, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(errStr, "auth"), strings.Contains(errStr, "api key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}
