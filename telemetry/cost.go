package telemetry

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ModelPricing holds per-million-token USD rates for a model.
type ModelPricing struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

func pricing(input, output string) ModelPricing {
	return ModelPricing{
		InputPerMillion:  decimal.RequireFromString(input),
		OutputPerMillion: decimal.RequireFromString(output),
	}
}

// defaultPricing is keyed by model ID prefix; LookupPricing uses the longest
// matching prefix.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":           pricing("2.50", "10.0"),
	"gpt-4o-mini":      pricing("0.15", "0.60"),
	"gpt-4-turbo":      pricing("10.0", "30.0"),
	"o1":               pricing("15.0", "60.0"),
	"o1-mini":          pricing("3.0", "12.0"),
	"gemini-2.0-flash": pricing("0.10", "0.40"),
	"gemini-1.5-pro":   pricing("1.25", "5.0"),
	"gemini-1.5-flash": pricing("0.075", "0.30"),
}

var fallbackPricing = pricing("3.0", "15.0")

var million = decimal.NewFromInt(1_000_000)

// LookupPricing returns the pricing for a model ID: exact match first, then
// longest prefix match, then fallback.
func LookupPricing(modelId string) ModelPricing {
	if p, ok := defaultPricing[modelId]; ok {
		return p
	}

	bestKey := ""
	for key := range defaultPricing {
		if strings.HasPrefix(modelId, key) && len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey != "" {
		return defaultPricing[bestKey]
	}

	return fallbackPricing
}

// EstimateCost returns the estimated USD cost of one call.
func EstimateCost(modelId string, inputTokens, outputTokens int) decimal.Decimal {
	p := LookupPricing(modelId)
	inputCost := decimal.NewFromInt(int64(inputTokens)).Mul(p.InputPerMillion).Div(million)
	outputCost := decimal.NewFromInt(int64(outputTokens)).Mul(p.OutputPerMillion).Div(million)
	return inputCost.Add(outputCost)
}
