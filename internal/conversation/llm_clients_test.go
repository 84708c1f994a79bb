package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockClientBuildsConverseInput(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " Done! "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(12)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.test-model")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"be brief", " "},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi"}, {Role: ChatRoleAssistant, Content: "hello"}, {Role: ChatRoleUser, Content: "blue header"}},
		MaxTokens:   100,
		Temperature: -1,
	})
	require.NoError(t, err)
	require.Equal(t, "Done!", resp.Text)
	require.Equal(t, int32(12), resp.Usage.TotalTokens)
	require.Equal(t, "anthropic.test-model", aws.ToString(api.input.ModelId))
	require.Len(t, api.input.System, 1)
	require.Len(t, api.input.Messages, 3)
	require.Nil(t, api.input.InferenceConfig.Temperature)
	require.Equal(t, int32(100), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockClientErrors(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{err: errors.New("throttled")}, "m")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	require.Error(t, err)

	_, err = client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)

	_, err = NewBedrockLLMClient(&fakeConverse{}, "").Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	require.Error(t, err)
}

type fakeChatAPI struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChatAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIClientComplete(t *testing.T) {
	api := &fakeChatAPI{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Sure thing "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	}}
	client := newOpenAILLMClientWithAPI(api, "")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"persona", "contract"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
		MaxTokens:   64,
		Temperature: 0.4,
	})
	require.NoError(t, err)
	require.Equal(t, "Sure thing", resp.Text)
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, int32(8), resp.Usage.TotalTokens)
	require.Equal(t, openai.GPT4oMini, api.req.Model)
	require.Len(t, api.req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, api.req.Messages[0].Role)
	require.Equal(t, "persona\n\ncontract", api.req.Messages[0].Content)
	require.Equal(t, 64, api.req.MaxTokens)

	_, err = client.Complete(context.Background(), LLMRequest{Model: "gpt-4o", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", api.req.Model)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	client := newOpenAILLMClientWithAPI(&fakeChatAPI{}, "gpt-4o-mini")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	require.Error(t, err)

	_, err = NewOpenAILLMClient("", "", "")
	require.Error(t, err)
}

func TestFallbackClient(t *testing.T) {
	primary := &stubLLM{err: errors.New("primary down")}
	fallback := &stubLLM{replies: []string{"from fallback"}}
	client := NewFallbackLLMClient(primary, fallback, quietLogger())

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	require.Equal(t, "from fallback", resp.Text)
	require.Len(t, primary.requests, 1)

	fallback.err = errors.New("also down")
	_, err = client.Complete(context.Background(), LLMRequest{})
	require.EqualError(t, err, "also down")

	healthy := NewFallbackLLMClient(&stubLLM{replies: []string{"primary"}}, fallback, nil)
	resp, err = healthy.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	require.Equal(t, "primary", resp.Text)
}
