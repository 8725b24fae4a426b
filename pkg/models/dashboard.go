package models

// UsageOverview aggregates request logs over a range of days.
type UsageOverview struct {
	TotalRequests int                    `json:"totalRequests"`
	TotalCost     float64                `json:"totalCost"`
	TotalTokens   int                    `json:"totalTokens"`
	AvgLatency    float64                `json:"avgLatency"`
	ErrorRate     float64                `json:"errorRate"`
	FallbackRate  float64                `json:"fallbackRate"`
	ByModel       map[string]*ModelStats `json:"byModel"`
	ByTaskType    map[string]*TaskStats  `json:"byTaskType"`
	ByDay         map[string]*DayStats   `json:"byDay"`
}

// ModelStats is the per-model slice of an overview.
type ModelStats struct {
	Requests   int     `json:"requests"`
	Cost       float64 `json:"cost"`
	Tokens     int     `json:"tokens"`
	Errors     int     `json:"errors"`
	AvgLatency float64 `json:"avgLatency"`
}

// TaskStats is the per-task-type slice of an overview.
type TaskStats struct {
	Requests   int     `json:"requests"`
	Cost       float64 `json:"cost"`
	AvgLatency float64 `json:"avgLatency"`
}

// DayStats is the per-day slice of an overview.
type DayStats struct {
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
	Errors   int     `json:"errors"`
}

// CostProjection extrapolates recent average daily cost.
type CostProjection struct {
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
	Yearly  float64 `json:"yearly"`
}
