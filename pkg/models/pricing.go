package models

// ModelPricing defines per-1K token costs for a provider id.
type ModelPricing struct {
	Model      string  `json:"model" yaml:"model"`
	InputCost  float64 `json:"input_cost_per_1k" yaml:"input_cost_per_1k"`
	OutputCost float64 `json:"output_cost_per_1k" yaml:"output_cost_per_1k"`
}

// Cost returns the price of the given token counts.
func (p ModelPricing) Cost(input, output int) float64 {
	return (float64(input)/1000)*p.InputCost + (float64(output)/1000)*p.OutputCost
}
