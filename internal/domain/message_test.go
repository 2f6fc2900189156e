package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role:      RoleUser,
		Content:   "price an EC2 t3.small",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Role != msg.Role || got.Content != msg.Content {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestMessageWithToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{
				ID:   "call-1",
				Name: "get_aws_pricing",
				Arguments: map[string]any{
					"service":       "ec2",
					"instance_type": "t3.small",
				},
			},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "get_aws_pricing" {
		t.Fatalf("tool calls mismatch: got %+v", got.ToolCalls)
	}
	if got.ToolCalls[0].Arguments["instance_type"] != "t3.small" {
		t.Errorf("Arguments = %v", got.ToolCalls[0].Arguments)
	}
}

func TestChatResponseJSONRoundTrip(t *testing.T) {
	resp := ChatResponse{
		ID:    "resp-1",
		Model: "anthropic.claude-3-haiku",
		Message: Message{
			Role:    RoleAssistant,
			Content: "roughly $15.18 per month",
		},
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ChatResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != resp.ID || got.Usage.TotalTokens != 15 {
		t.Errorf("got %+v, want %+v", got, resp)
	}
}

func TestRoleConstants(t *testing.T) {
	roles := map[string]string{
		"system":    RoleSystem,
		"user":      RoleUser,
		"assistant": RoleAssistant,
		"tool":      RoleTool,
	}
	for expected, got := range roles {
		if got != expected {
			t.Errorf("Role %q = %q, want %q", expected, got, expected)
		}
	}
}
