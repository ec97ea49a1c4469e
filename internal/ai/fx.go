package ai

import (
	"context"

	"github.com/smallbiznis/nexus360/internal/ai/client"
	"github.com/smallbiznis/nexus360/internal/ai/domain"
	"github.com/smallbiznis/nexus360/internal/ai/service"
	"github.com/smallbiznis/nexus360/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ai.service",
	fx.Provide(provideCollaborator),
	fx.Provide(service.NewAssistant),
)

func provideCollaborator(cfg config.Config, policy *config.ReviewPolicyHolder, log *zap.Logger) (domain.Collaborator, error) {
	if !cfg.AI.Enabled || cfg.AI.APIKey == "" {
		log.Info("ai collaborator disabled")
		return client.Noop{}, nil
	}
	gemini, err := client.NewGemini(context.Background(), client.GeminiConfig{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		APIKey:  cfg.AI.APIKey,
		Timeout: policy.Get().AITimeout,
	})
	if err != nil {
		return nil, err
	}
	return gemini, nil
}
