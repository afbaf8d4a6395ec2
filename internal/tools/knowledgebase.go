package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/voicebridge/voice-gateway/internal/observability"
	"github.com/voicebridge/voice-gateway/internal/resilience"
)

// KnowledgeBaseConfig configures the knowledge base retrieval tool
type KnowledgeBaseConfig struct {
	Region          string
	KnowledgeBaseID string
	ModelARN        string
	MaxFailures     int
	ResetTimeout    time.Duration
}

// KnowledgeBaseTool answers questions from a Bedrock knowledge base using
// retrieve-and-generate. Service failures are reported as business errors so
// the model can tell the user the lookup failed.
type KnowledgeBaseTool struct {
	cfg     KnowledgeBaseConfig
	breaker *resilience.CircuitBreaker

	mu     sync.Mutex
	client *bedrockagentruntime.Client
}

// NewKnowledgeBaseTool creates the knowledge base tool
func NewKnowledgeBaseTool(cfg KnowledgeBaseConfig) *KnowledgeBaseTool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &KnowledgeBaseTool{
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("knowledge_base", cfg.MaxFailures, cfg.ResetTimeout),
	}
}

func (t *KnowledgeBaseTool) Name() string { return "search_knowledge_base" }

func (t *KnowledgeBaseTool) Description() string {
	return "Search the product knowledge base and answer a question from its contents."
}

func (t *KnowledgeBaseTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Question to answer from the knowledge base",
			},
		},
		"required": []string{"query"},
	}
}

// getClient lazily builds the Bedrock agent runtime client
func (t *KnowledgeBaseTool) getClient(ctx context.Context) (*bedrockagentruntime.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(t.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	t.client = bedrockagentruntime.NewFromConfig(awsCfg)
	return t.client, nil
}

func (t *KnowledgeBaseTool) Execute(ctx context.Context, params map[string]any, _ Context) (any, error) {
	query, ok := StringParam(params, "query")
	if !ok || query == "" {
		return BusinessError("query is required"), nil
	}
	if t.cfg.KnowledgeBaseID == "" {
		return BusinessError("knowledge base is not configured"), nil
	}

	client, err := t.getClient(ctx)
	if err != nil {
		return BusinessError(err.Error()), nil
	}

	var answer string
	callErr := t.breaker.Call(func() error {
		out, err := client.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
			Input: &agenttypes.RetrieveAndGenerateInput{
				Text: aws.String(query),
			},
			RetrieveAndGenerateConfiguration: &agenttypes.RetrieveAndGenerateConfiguration{
				Type: agenttypes.RetrieveAndGenerateTypeKnowledgeBase,
				KnowledgeBaseConfiguration: &agenttypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
					KnowledgeBaseId: aws.String(t.cfg.KnowledgeBaseID),
					ModelArn:        aws.String(t.cfg.ModelARN),
				},
			},
		})
		if err != nil {
			return err
		}
		if out.Output != nil && out.Output.Text != nil {
			answer = *out.Output.Text
		}
		return nil
	})
	observability.UpdateCircuitBreakerState(t.breaker.Name(), int(t.breaker.GetState()))

	if callErr != nil {
		return BusinessError(fmt.Sprintf("knowledge base lookup failed: %v", callErr)), nil
	}
	if answer == "" {
		return map[string]any{
			"answer":            "No relevant information found in the knowledge base.",
			"fromKnowledgeBase": false,
		}, nil
	}

	return map[string]any{
		"answer":            answer,
		"fromKnowledgeBase": true,
	}, nil
}
