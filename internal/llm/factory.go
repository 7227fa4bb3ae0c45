package llm

import (
	"fmt"
	"net/http"

	"phq-companion/internal/config"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string
	HTTPClient         *http.Client
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
}

// CreateClient builds the client for provider. A provider without its
// credential yields ErrMissingCredential.
func (f *Factory) CreateClient(provider config.LLMProvider, model string) (Client, error) {
	switch provider {
	case config.ProviderResponses:
		if f.OpenaiAPIKey == "" {
			return nil, ErrMissingCredential
		}
		return NewResponses(f.OpenaiAPIKey, f.OpenaiBaseURL, model, f.HTTPClient), nil
	case config.ProviderOpenAI:
		if f.OpenaiAPIKey == "" {
			return nil, ErrMissingCredential
		}
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, model, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case config.ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
