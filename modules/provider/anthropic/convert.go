package anthropic

import (
	"encoding/json"
	"log/slog"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/heraldbot/herald/internal/provider"
)

// convertRequest builds Anthropic SDK parameters from a completion
// request. Leading system messages move into the dedicated System
// field; the API does not accept them in the message list.
func convertRequest(req provider.CompletionRequest, cfg *Config, logger *slog.Logger) sdkanthropic.MessageNewParams {
	system, messages := splitSystemMessages(req.Messages)

	params := sdkanthropic.MessageNewParams{
		Model:    sdkanthropic.Model(cfg.Model),
		Messages: convertMessages(messages, logger),
		System:   system,
	}

	params.MaxTokens = int64(cfg.MaxTokens)
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}

	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdkanthropic.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params
}

func splitSystemMessages(msgs []provider.LLMMessage) ([]sdkanthropic.TextBlockParam, []provider.LLMMessage) {
	var system []sdkanthropic.TextBlockParam
	var idx int
	for idx = 0; idx < len(msgs); idx++ {
		if msgs[idx].Role != provider.MessageRoleSystem {
			break
		}
		system = append(system, sdkanthropic.TextBlockParam{
			Text: msgs[idx].Content,
		})
	}
	return system, msgs[idx:]
}

// convertMessages maps herald messages to SDK message params.
// Consecutive tool results group into a single user message: Anthropic
// requires all of a turn's tool results together. Mid-conversation
// system messages have no API representation and are dropped with a
// warning.
func convertMessages(msgs []provider.LLMMessage, logger *slog.Logger) []sdkanthropic.MessageParam {
	var result []sdkanthropic.MessageParam

	for i := 0; i < len(msgs); {
		msg := msgs[i]

		switch msg.Role {
		case provider.MessageRoleTool:
			var blocks []sdkanthropic.ContentBlockParamUnion
			for i < len(msgs) && msgs[i].Role == provider.MessageRoleTool {
				blocks = append(blocks, sdkanthropic.NewToolResultBlock(
					msgs[i].ToolID,
					msgs[i].Content,
					msgs[i].IsError,
				))
				i++
			}
			result = append(result, sdkanthropic.MessageParam{
				Role:    sdkanthropic.MessageParamRoleUser,
				Content: blocks,
			})

		case provider.MessageRoleAssistant:
			result = append(result, convertAssistantMessage(msg))
			i++

		case provider.MessageRoleUser:
			result = append(result, sdkanthropic.NewUserMessage(
				sdkanthropic.NewTextBlock(msg.Content),
			))
			i++

		case provider.MessageRoleSystem:
			if logger != nil {
				logger.Warn("dropping mid-conversation system message", "index", i)
			}
			i++

		default:
			i++
		}
	}

	return result
}

func convertAssistantMessage(msg provider.LLMMessage) sdkanthropic.MessageParam {
	var blocks []sdkanthropic.ContentBlockParamUnion

	if msg.Content != "" {
		blocks = append(blocks, sdkanthropic.NewTextBlock(msg.Content))
	}

	for _, tc := range msg.ToolCalls {
		// json.RawMessage implements json.Marshaler, so the SDK
		// serializes it without double-encoding.
		input := any(tc.Arguments)
		if len(tc.Arguments) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, sdkanthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}

	return sdkanthropic.NewAssistantMessage(blocks...)
}

func convertTools(tools []provider.ToolDefinition) []sdkanthropic.ToolUnionParam {
	result := make([]sdkanthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		tool := &sdkanthropic.ToolParam{
			Name: t.Name,
		}
		if t.Description != "" {
			tool.Description = sdkanthropic.String(t.Description)
		}
		if len(t.Parameters) > 0 {
			tool.InputSchema = convertInputSchema(t.Parameters)
		}
		result[i] = sdkanthropic.ToolUnionParam{OfTool: tool}
	}
	return result
}

// convertInputSchema splits a raw JSON Schema into the SDK's
// ToolInputSchemaParam. Fields beyond "properties" and "required"
// ($defs, oneOf, enum, additionalProperties) survive via ExtraFields.
func convertInputSchema(raw json.RawMessage) sdkanthropic.ToolInputSchemaParam {
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return sdkanthropic.ToolInputSchemaParam{}
	}

	param := sdkanthropic.ToolInputSchemaParam{}

	if props, ok := full["properties"]; ok {
		param.Properties = props
		delete(full, "properties")
	}
	if req, ok := full["required"]; ok {
		if arr, ok := req.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			param.Required = strs
		}
		delete(full, "required")
	}
	// The SDK fixes "type" to "object" itself.
	delete(full, "type")

	if len(full) > 0 {
		param.ExtraFields = full
	}

	return param
}

func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var content string
	var toolCalls []provider.ToolCall

	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case sdkanthropic.TextBlock:
			if content != "" {
				content += "\n"
			}
			content += v.Text
		case sdkanthropic.ToolUseBlock:
			toolCalls = append(toolCalls, provider.ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: v.Input,
			})
		}
	}

	return provider.CompletionResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonEndTurn, sdkanthropic.StopReasonStopSequence:
		return provider.FinishReasonStop
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonToolUse:
		return provider.FinishReasonToolUse
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
