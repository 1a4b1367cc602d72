package config

import (
	"encoding/json"
	"os"
)

// Model represents an available LLM model and its capability flags
type Model struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	Multiplier    float64 `json:"multiplier,omitempty"`
	WebSearch     bool    `json:"web_search,omitempty"`
	WikiGrounding bool    `json:"wiki_grounding,omitempty"`
	Vision        bool    `json:"vision,omitempty"`
}

// modelCatalogFile is the on-disk shape of the model catalog
type modelCatalogFile struct {
	DefaultModel        string            `json:"default_model"`
	WebSearchMultiplier float64           `json:"web_search_multiplier"`
	Models              []Model           `json:"models"`
	Aliases             map[string]string `json:"aliases"`
}

// ModelCatalog holds the available models, the deprecated-id alias table
// and the cost multipliers. Loaded once at startup, immutable afterwards.
type ModelCatalog struct {
	defaultModel        string
	webSearchMultiplier float64
	models              map[string]Model
	order               []string
	aliases             map[string]string
}

// NewModelCatalog creates a new model catalog from a JSON file
func NewModelCatalog(configPath string) (*ModelCatalog, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var file modelCatalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return newModelCatalogFromFile(file), nil
}

// NewStaticModelCatalog builds a catalog directly from model descriptors.
// Used by tests and embedded deployments that do not ship a JSON file.
func NewStaticModelCatalog(defaultModel string, webSearchMultiplier float64, models []Model, aliases map[string]string) *ModelCatalog {
	return newModelCatalogFromFile(modelCatalogFile{
		DefaultModel:        defaultModel,
		WebSearchMultiplier: webSearchMultiplier,
		Models:              models,
		Aliases:             aliases,
	})
}

func newModelCatalogFromFile(file modelCatalogFile) *ModelCatalog {
	catalog := &ModelCatalog{
		defaultModel:        file.DefaultModel,
		webSearchMultiplier: file.WebSearchMultiplier,
		models:              make(map[string]Model, len(file.Models)),
		aliases:             file.Aliases,
	}
	if catalog.webSearchMultiplier <= 0 {
		catalog.webSearchMultiplier = 1.5
	}
	if catalog.aliases == nil {
		catalog.aliases = map[string]string{}
	}
	for _, model := range file.Models {
		if model.Multiplier <= 0 {
			model.Multiplier = 1.0
		}
		catalog.models[model.ID] = model
		catalog.order = append(catalog.order, model.ID)
	}
	if catalog.defaultModel == "" && len(catalog.order) > 0 {
		catalog.defaultModel = catalog.order[0]
	}
	return catalog
}

// AvailableModels returns the list of available models in catalog order
func (mc *ModelCatalog) AvailableModels() []Model {
	models := make([]Model, 0, len(mc.order))
	for _, id := range mc.order {
		models = append(models, mc.models[id])
	}
	return models
}

// Get returns the descriptor for a model ID
func (mc *ModelCatalog) Get(modelID string) (Model, bool) {
	model, ok := mc.models[modelID]
	return model, ok
}

// IsValidModel checks if a model ID is in the catalog
func (mc *ModelCatalog) IsValidModel(modelID string) bool {
	_, ok := mc.models[modelID]
	return ok
}

// Alias returns the current ID for a deprecated model ID, if one is mapped
func (mc *ModelCatalog) Alias(modelID string) (string, bool) {
	current, ok := mc.aliases[modelID]
	return current, ok
}

// DefaultModel returns the configured default model ID
func (mc *ModelCatalog) DefaultModel() string {
	if mc.defaultModel != "" {
		return mc.defaultModel
	}
	// Fallback in case no models are configured (shouldn't happen)
	return "meta-llama/llama-3.3-8b-instruct:free"
}

// Multiplier returns the cost multiplier for a model, 1.0 for unlisted models
func (mc *ModelCatalog) Multiplier(modelID string) float64 {
	if model, ok := mc.models[modelID]; ok {
		return model.Multiplier
	}
	return 1.0
}

// WebSearchMultiplier returns the surcharge multiplier applied to
// web-search-assisted completions
func (mc *ModelCatalog) WebSearchMultiplier() float64 {
	return mc.webSearchMultiplier
}
