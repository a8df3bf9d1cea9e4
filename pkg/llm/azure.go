package llm

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/openai/openai-go/v3/azure"
)

const defaultAzureAPIVersion = "2024-06-01"

// NewAzure creates a provider for Azure OpenAI. The model name doubles as
// the deployment name, following Azure's routing convention.
func NewAzure(settings ProviderSettings, logger hclog.Logger) (*OpenAIProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("azure: api key missing: %w", ErrNotConfigured)
	}

	endpoint := settings.BaseURL
	if endpoint == "" && settings.ResourceName != "" {
		endpoint = fmt.Sprintf("https://%s.openai.azure.com", settings.ResourceName)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("azure: endpoint or resource name missing: %w", ErrNotConfigured)
	}

	apiVersion := settings.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}

	return newOpenAICompatible("azure", settings, logger,
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(settings.APIKey),
	), nil
}
