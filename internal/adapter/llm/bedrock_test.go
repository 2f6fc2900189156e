package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"costcompass/internal/domain"
)

type fakeConverseAPI struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeConverseAPI) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, errors.New("not implemented")
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: text},
				},
			},
		},
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(20),
		},
	}
}

func TestChatTextResponse(t *testing.T) {
	api := &fakeConverseAPI{output: textOutput("hello")}
	p := newBedrockProviderWithClient("default-model", api, discard())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be helpful"},
			{Role: domain.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", resp.Usage.TotalTokens)
	}

	// The empty request model falls back to the provider default.
	if got := aws.ToString(api.lastInput.ModelId); got != "default-model" {
		t.Errorf("ModelId = %q", got)
	}
	// The system message travels in the System field, not Messages.
	if len(api.lastInput.System) != 1 {
		t.Fatalf("System = %+v", api.lastInput.System)
	}
	if len(api.lastInput.Messages) != 1 {
		t.Fatalf("Messages = %+v", api.lastInput.Messages)
	}
}

func TestChatToolUseResponse(t *testing.T) {
	api := &fakeConverseAPI{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberToolUse{
						Value: types.ToolUseBlock{
							ToolUseId: aws.String("tu-1"),
							Name:      aws.String("get_pricing"),
							Input:     document.NewLazyDocument(map[string]any{"instance_type": "t3.small"}),
						},
					},
				},
			},
		},
	}}
	p := newBedrockProviderWithClient("m", api, discard())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "price a t3.small"}},
		Tools: []domain.Tool{{
			Name:        "get_pricing",
			Description: "Fetch live AWS pricing",
			Schema: domain.ToolSchema{
				Type:       "object",
				Properties: map[string]any{"instance_type": map[string]any{"type": "string"}},
				Required:   []string{"instance_type"},
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", resp.Message.ToolCalls)
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "tu-1" || tc.Name != "get_pricing" {
		t.Errorf("tool call = %+v", tc)
	}
	if got, _ := tc.Arguments["instance_type"].(string); got != "t3.small" {
		t.Errorf("Arguments = %+v", tc.Arguments)
	}

	if api.lastInput.ToolConfig == nil || len(api.lastInput.ToolConfig.Tools) != 1 {
		t.Fatalf("ToolConfig = %+v", api.lastInput.ToolConfig)
	}
}

func TestChatToolResultRoundTrip(t *testing.T) {
	api := &fakeConverseAPI{output: textOutput("done")}
	p := newBedrockProviderWithClient("m", api, discard())

	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "price it"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
				ID: "tu-1", Name: "get_pricing", Arguments: map[string]any{"q": "t3.small"},
			}}},
			{Role: domain.RoleTool, Content: `{"hourly_usd":0.0208}`, ToolCalls: []domain.ToolCall{{ID: "tu-1"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(api.lastInput.Messages) != 3 {
		t.Fatalf("Messages = %d, want 3", len(api.lastInput.Messages))
	}
	// Tool results are sent as user-role tool-result blocks.
	toolMsg := api.lastInput.Messages[2]
	if toolMsg.Role != types.ConversationRoleUser {
		t.Errorf("tool message role = %v", toolMsg.Role)
	}
	block, ok := toolMsg.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("tool message block = %T", toolMsg.Content[0])
	}
	if aws.ToString(block.Value.ToolUseId) != "tu-1" {
		t.Errorf("ToolUseId = %q", aws.ToString(block.Value.ToolUseId))
	}
}

type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestMapBedrockError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throttle", &apiError{code: "ThrottlingException", msg: "slow down"}, domain.ErrRateLimit},
		{"timeout", &apiError{code: "ModelTimeoutException", msg: "timed out"}, domain.ErrTimeout},
		{"overflow", &apiError{code: "ValidationException", msg: "input is too long"}, domain.ErrContextOverflow},
		{"denied", &apiError{code: "AccessDeniedException", msg: "no"}, domain.ErrProviderError},
		{"unavailable", &apiError{code: "ServiceUnavailableException", msg: "down"}, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapBedrockError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("mapBedrockError(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	plain := errors.New("socket closed")
	var de *domain.DomainError
	if got := mapBedrockError(plain); !errors.As(got, &de) {
		t.Errorf("unclassified error = %v, want DomainError wrap", got)
	}
}

func TestFromStreamEvent(t *testing.T) {
	text := fromStreamEvent(&types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberText{Value: "chunk"},
		},
	})
	if text == nil || text.Content != "chunk" {
		t.Errorf("text delta = %+v", text)
	}

	start := fromStreamEvent(&types.ConverseStreamOutputMemberContentBlockStart{
		Value: types.ContentBlockStartEvent{
			Start: &types.ContentBlockStartMemberToolUse{
				Value: types.ToolUseBlockStart{
					ToolUseId: aws.String("tu-1"),
					Name:      aws.String("get_pricing"),
				},
			},
		},
	})
	if start == nil || len(start.ToolCalls) != 1 || start.ToolCalls[0].Name != "get_pricing" {
		t.Errorf("tool start delta = %+v", start)
	}

	stop := fromStreamEvent(&types.ConverseStreamOutputMemberMessageStop{})
	if stop == nil || !stop.Done {
		t.Errorf("stop delta = %+v", stop)
	}

	meta := fromStreamEvent(&types.ConverseStreamOutputMemberMetadata{
		Value: types.ConverseStreamMetadataEvent{
			Usage: &types.TokenUsage{InputTokens: aws.Int32(5), OutputTokens: aws.Int32(7)},
		},
	})
	if meta == nil || !meta.Done || meta.Usage == nil || meta.Usage.TotalTokens != 12 {
		t.Errorf("metadata delta = %+v", meta)
	}
}
