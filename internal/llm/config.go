// Package llm provides the Gemini client used for content ideation.
package llm

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is the cheap fallback used when the standard model is unavailable
	TierLite ModelTier = "lite"
	// TierStandard generates title and structure variants
	TierStandard ModelTier = "standard"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the model configuration for the ideation client
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		Temperature: 0.7,
	}
}

// NewConfig returns the default configuration with the standard model and temperature overridden.
// Empty or zero arguments keep the defaults.
func NewConfig(model string, temperature float32) *Config {
	cfg := DefaultConfig()
	if model != "" {
		cfg.Models[TierStandard] = model
	}
	if temperature > 0 {
		cfg.Temperature = temperature
	}
	return cfg
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}
