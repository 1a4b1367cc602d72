package tokens

import (
	"chat-gateway/internal/config"
	"math"
)

// CostEngine converts raw token counts into the effective cost charged
// against the ledger. The scaling is a margin-protection mechanism and is
// decoupled from what the upstream provider actually billed.
type CostEngine struct {
	catalog *config.ModelCatalog
}

// NewCostEngine creates a cost engine over the model catalog
func NewCostEngine(catalog *config.ModelCatalog) *CostEngine {
	return &CostEngine{catalog: catalog}
}

// EffectiveCost scales rawTokens by the model multiplier and, when web search
// was used, by the web-search surcharge. Unlisted models cost 1.0x; with no
// catalog at all the raw count is charged unscaled rather than failing.
func (e *CostEngine) EffectiveCost(modelID string, rawTokens int, usedWebSearch bool) int {
	if rawTokens <= 0 {
		return 0
	}
	if e.catalog == nil {
		return rawTokens
	}

	cost := float64(rawTokens) * e.catalog.Multiplier(modelID)
	if usedWebSearch {
		cost *= e.catalog.WebSearchMultiplier()
	}

	return int(math.Round(cost))
}
