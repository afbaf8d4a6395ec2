package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ReasonerConfig configures the reasoning tool
type ReasonerConfig struct {
	Region  string
	ModelID string
}

// ReasonerTool hands a question to a text reasoning model. The invoking
// session's inference config is forwarded to the downstream call.
type ReasonerTool struct {
	cfg ReasonerConfig

	mu     sync.Mutex
	client *bedrockruntime.Client
}

// NewReasonerTool creates the reasoning tool
func NewReasonerTool(cfg ReasonerConfig) *ReasonerTool {
	return &ReasonerTool{cfg: cfg}
}

func (t *ReasonerTool) Name() string { return "ask_reasoning_model" }

func (t *ReasonerTool) Description() string {
	return "Ask a more capable text model to reason through a complex question and return its answer."
}

func (t *ReasonerTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "Question requiring multi-step reasoning",
			},
		},
		"required": []string{"question"},
	}
}

func (t *ReasonerTool) getClient(ctx context.Context) (*bedrockruntime.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(t.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	t.client = bedrockruntime.NewFromConfig(awsCfg)
	return t.client, nil
}

func (t *ReasonerTool) Execute(ctx context.Context, params map[string]any, tctx Context) (any, error) {
	question, ok := StringParam(params, "question")
	if !ok || question == "" {
		return BusinessError("question is required"), nil
	}

	client, err := t.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(t.cfg.ModelID),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: question},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(tctx.Inference.MaxTokens)),
			Temperature: aws.Float32(float32(tctx.Inference.Temperature)),
			TopP:        aws.Float32(float32(tctx.Inference.TopP)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning call failed: %w", err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return BusinessError("reasoning model returned no content"), nil
	}
	text, ok := msg.Value.Content[0].(*brtypes.ContentBlockMemberText)
	if !ok {
		return BusinessError("reasoning model returned non-text content"), nil
	}

	return map[string]any{
		"answer": text.Value,
	}, nil
}
