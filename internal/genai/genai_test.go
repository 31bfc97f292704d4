package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp openai.ChatCompletion
	err  error
	// captures the context to verify deadline propagation
	sawDeadline bool
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	_, m.sawDeadline = ctx.Deadline()
	return m.resp, m.err
}

func testClient(chat chatService) *Client {
	return &Client{chat: chat, model: "test-model", temperature: 0.2, maxCompletionTokens: 100, timeout: time.Second}
}

func TestGenerateWithMessages_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"intent":{"primary":"transaction"}}`}},
		},
	}
	mock := &mockChatService{resp: mockResp}
	client := testClient(mock)
	out, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "transaction") {
		t.Errorf("unexpected content: %s", out)
	}
	if !mock.sawDeadline {
		t.Error("expected client to apply its timeout as a context deadline")
	}
}

func TestGenerateWithMessages_ServiceError(t *testing.T) {
	client := testClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateWithMessages_NoChoices(t *testing.T) {
	client := testClient(&mockChatService{resp: openai.ChatCompletion{}})
	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err != ErrNoChoicesReturned {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestGeneratePromptWithContext(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	client := testClient(&mockChatService{resp: mockResp})
	out, err := client.GeneratePromptWithContext(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got %q", out)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("test-model"), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != "test-model" {
		t.Errorf("expected configured model, got %s", cli.model)
	}
	if cli.timeout != 5*time.Second {
		t.Errorf("expected configured timeout, got %v", cli.timeout)
	}
}
