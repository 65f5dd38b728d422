// Package anthropic provides the Anthropic Claude client implementation of llm.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"assistant/pkg/config"
	"assistant/pkg/llm"
	"assistant/pkg/llmerrors"
)

// ClaudeClient wraps the Anthropic API client to implement llm.Client.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a Claude client with the default model (raw client,
// middleware applied at a higher level).
func NewClaudeClient(apiKey string) llm.Client {
	return NewClaudeClientWithModel(apiKey, config.DefaultAnthropicModel)
}

// NewClaudeClientWithModel creates a Claude client for a specific model.
func NewClaudeClientWithModel(apiKey, model string) llm.Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeClient{
		client: client,
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements.
// 1. Extracts system messages to the top-level system parameter
// 2. Merges consecutive non-assistant messages into single user messages
// 3. Ensures strict user/assistant alternation ending on a user message.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var nonSystem []llm.CompletionMessage
	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			nonSystem = append(nonSystem, *msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(nonSystem) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	// Merge runs of non-assistant messages into a single user message. Tool
	// results and user turns all collapse to user role for Anthropic.
	var merged []llm.CompletionMessage
	var userParts []string
	for i := range nonSystem {
		msg := &nonSystem[i]
		if msg.Role == llm.RoleAssistant {
			if len(userParts) > 0 {
				merged = append(merged, llm.CompletionMessage{
					Role:    llm.RoleUser,
					Content: strings.Join(userParts, "\n\n"),
				})
				userParts = nil
			}
			merged = append(merged, *msg)
		} else {
			userParts = append(userParts, msg.Content)
		}
	}
	if len(userParts) > 0 {
		merged = append(merged, llm.CompletionMessage{
			Role:    llm.RoleUser,
			Content: strings.Join(userParts, "\n\n"),
		})
	}

	for i := range merged {
		msg := &merged[i]
		if i > 0 && msg.Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, msg.Role)
		}
		if i == 0 && msg.Role != llm.RoleUser {
			return "", nil, fmt.Errorf("first message must be user role, got: %s", msg.Role)
		}
	}
	if last := &merged[len(merged)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}

	return systemPrompt, merged, nil
}

// Complete implements the llm.Client interface.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	if len(in.Tools) > 0 {
		var toolParams []anthropic.ToolUnionParam
		for i := range in.Tools {
			tool := &in.Tools[i]

			var properties any
			if len(tool.InputSchema.Properties) > 0 {
				props := make(map[string]any)
				for name := range tool.InputSchema.Properties {
					prop := tool.InputSchema.Properties[name]
					propMap := map[string]any{"type": prop.Type}
					if prop.Description != "" {
						propMap["description"] = prop.Description
					}
					if len(prop.Enum) > 0 {
						propMap["enum"] = prop.Enum
					}
					props[name] = propMap
				}
				properties = props
			}

			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   tool.InputSchema.Required,
			}
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, tool.Name))
		}
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var responseText string
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			responseText += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return llm.CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUse.ID,
				Name:       toolUse.Name,
				Parameters: args,
			})
		}
	}

	return llm.CompletionResponse{
		Content:    responseText,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to structured error types so the
// retry middleware can decide what is worth retrying.
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

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apiErr.StatusCode, "authentication failed - check API key")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apiErr.StatusCode, "rate limit exceeded")
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apiErr.StatusCode, "bad request - check prompt format and parameters")
		case 500, 502, 503, 504, 529:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apiErr.StatusCode, "server error")
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "network"),
		strings.Contains(errStr, "eof"),
		strings.Contains(errStr, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(errStr, "rate"), strings.Contains(errStr, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(errStr, "auth"), strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "api key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	case strings.Contains(errStr, "invalid"), strings.Contains(errStr, "malformed"), strings.Contains(errStr, "too large"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "prompt or request error")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}
