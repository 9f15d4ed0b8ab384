package llm

import (
	"github.com/eljaska/telara/pkg/config"
)

type Config struct {
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
}

// LoadConfig reads the enrichment provider settings from the environment.
// An empty APIKey means enrichment is disabled.
func LoadConfig() Config {
	return Config{
		Model:     config.GetEnv("LLM_MODEL", "claude-3-5-haiku-20241022"),
		APIKey:    config.GetEnv("ANTHROPIC_API_KEY", ""),
		APIURL:    config.GetEnv("LLM_API_URL", ""),
		MaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 0),
	}
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}
