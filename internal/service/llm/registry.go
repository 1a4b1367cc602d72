package llm

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"fmt"
	"strings"
)

// Provider names known to the registry
const (
	ProviderOpenRouter = "openrouter"
	ProviderKluster    = "kluster"
	ProviderSarvam     = "sarvam"
)

// HeaderStyle describes how a provider expects its credential on the wire
type HeaderStyle string

const (
	// HeaderBearer sends "Authorization: Bearer <key>"
	HeaderBearer HeaderStyle = "bearer"
	// HeaderSubscriptionKey sends the key in an api-subscription-key header
	HeaderSubscriptionKey HeaderStyle = "subscription-key"
)

// Capability is a provider/model feature flag
type Capability string

const (
	CapabilityWebSearch     Capability = "web_search"
	CapabilityWikiGrounding Capability = "wiki_grounding"
	CapabilityVision        Capability = "vision"
)

// ProviderConfig is the resolved upstream configuration for a model
type ProviderConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	HeaderStyle HeaderStyle
}

// Registry maps model identifiers to upstream provider configuration and
// capability flags. Pure lookups over static configuration, loaded once.
type Registry struct {
	catalog   *config.ModelCatalog
	providers map[string]ProviderConfig
}

// NewRegistry creates a registry from application configuration
func NewRegistry(providers config.ProvidersConfig, catalog *config.ModelCatalog) *Registry {
	return &Registry{
		catalog: catalog,
		providers: map[string]ProviderConfig{
			ProviderOpenRouter: {
				Name:        ProviderOpenRouter,
				BaseURL:     strings.TrimSuffix(providers.OpenRouterBaseURL, "/"),
				APIKey:      providers.OpenRouterAPIKey,
				HeaderStyle: HeaderBearer,
			},
			ProviderKluster: {
				Name:        ProviderKluster,
				BaseURL:     strings.TrimSuffix(providers.KlusterBaseURL, "/"),
				APIKey:      providers.KlusterAPIKey,
				HeaderStyle: HeaderBearer,
			},
			ProviderSarvam: {
				Name:        ProviderSarvam,
				BaseURL:     strings.TrimSuffix(providers.SarvamBaseURL, "/"),
				APIKey:      providers.SarvamAPIKey,
				HeaderStyle: HeaderSubscriptionKey,
			},
		},
	}
}

// Catalog returns the underlying model catalog
func (r *Registry) Catalog() *config.ModelCatalog {
	return r.catalog
}

// MigrateModelID rewrites deprecated model identifiers to their current
// equivalent. Unknown identifiers fall back to the default model instead of
// failing the request. Idempotent: migrating twice is the same as once.
func (r *Registry) MigrateModelID(modelID string) string {
	if current, ok := r.catalog.Alias(modelID); ok {
		modelID = current
	}
	if r.catalog.IsValidModel(modelID) {
		return modelID
	}
	fallback := r.catalog.DefaultModel()
	if modelID != "" {
		logger.Log.WithField("model", modelID).Warn("Unknown model identifier, falling back to default model")
	}
	return fallback
}

// Resolve returns the upstream provider configuration for a model identifier.
// A missing credential for the resolved provider is a hard configuration error.
func (r *Registry) Resolve(modelID string) (*ProviderConfig, error) {
	model, ok := r.catalog.Get(modelID)
	if !ok {
		return nil, fmt.Errorf("model %q not in catalog", modelID)
	}

	provider, ok := r.providers[model.Provider]
	if !ok {
		return nil, fmt.Errorf("model %q references unknown provider %q", modelID, model.Provider)
	}

	if provider.APIKey == "" {
		return nil, fmt.Errorf("provider %s is not configured: missing API key", provider.Name)
	}

	return &provider, nil
}

// Supports reports whether a model carries a capability flag.
// Unknown models support nothing.
func (r *Registry) Supports(modelID string, capability Capability) bool {
	model, ok := r.catalog.Get(modelID)
	if !ok {
		return false
	}
	switch capability {
	case CapabilityWebSearch:
		return model.WebSearch
	case CapabilityWikiGrounding:
		return model.WikiGrounding
	case CapabilityVision:
		return model.Vision
	default:
		return false
	}
}

// UpstreamModelID strips the provider prefix from a catalog model identifier,
// yielding the name the upstream API expects
func UpstreamModelID(modelID string) string {
	for _, prefix := range []string{ProviderOpenRouter + "/", ProviderKluster + "/", ProviderSarvam + "/"} {
		if strings.HasPrefix(modelID, prefix) {
			return strings.TrimPrefix(modelID, prefix)
		}
	}
	return modelID
}
