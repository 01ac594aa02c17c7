package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/quarrylabs/warden/llm"
	"github.com/quarrylabs/warden/providers/openai"
	"github.com/quarrylabs/warden/secrets"
)

func llmClientFromViper(ctx context.Context) (llm.Client, string, error) {
	viper.SetDefault("llm.endpoint", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.api_key_env", "OPENAI_API_KEY")

	endpoint := strings.TrimSpace(viper.GetString("llm.endpoint"))
	model := strings.TrimSpace(viper.GetString("llm.model"))

	// The key never lives in the config file; only a reference to an
	// env var does.
	resolver := &secrets.EnvResolver{}
	apiKey, err := resolver.Resolve(ctx, viper.GetString("llm.api_key_env"))
	if err != nil {
		return nil, "", fmt.Errorf("resolve llm api key: %w", err)
	}

	return openai.New(endpoint, apiKey), model, nil
}
