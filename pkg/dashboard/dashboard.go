// Package dashboard aggregates request logs into usage and cost summaries.
package dashboard

import (
	"context"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
)

// DefaultDays is the overview range when none is given.
const DefaultDays = 7

// Source reads request logs by day range. requestlog.Logger implements it.
type Source interface {
	QueryRange(ctx context.Context, start, end time.Time) ([]models.RequestLog, error)
}

// Service computes read-only aggregates over a Source.
type Service struct {
	src Source
	now func() time.Time
}

// New creates a Service. A nil now uses time.Now.
func New(src Source, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{src: src, now: now}
}

// UsageOverview aggregates the records from days ago through now.
func (s *Service) UsageOverview(ctx context.Context, days int) (*models.UsageOverview, error) {
	if days <= 0 {
		days = DefaultDays
	}
	end := s.now()
	logs, err := s.src.QueryRange(ctx, end.AddDate(0, 0, -days), end)
	if err != nil {
		return nil, err
	}
	return Aggregate(logs), nil
}

// CostProjection extrapolates the average daily cost of the last seven days.
func (s *Service) CostProjection(ctx context.Context) (*models.CostProjection, error) {
	overview, err := s.UsageOverview(ctx, DefaultDays)
	if err != nil {
		return nil, err
	}
	daily := overview.TotalCost / DefaultDays
	return &models.CostProjection{
		Daily:   daily,
		Weekly:  daily * 7,
		Monthly: daily * 30,
		Yearly:  daily * 365,
	}, nil
}

// Aggregate summarizes logs. An empty slice yields all zeros and empty maps.
func Aggregate(logs []models.RequestLog) *models.UsageOverview {
	o := &models.UsageOverview{
		ByModel:    make(map[string]*models.ModelStats),
		ByTaskType: make(map[string]*models.TaskStats),
		ByDay:      make(map[string]*models.DayStats),
	}
	if len(logs) == 0 {
		return o
	}

	var totalLatency float64
	var errs, fallbacks int
	for _, l := range logs {
		resp := l.Response
		latency := float64(resp.Latency)
		failed := l.Error != ""

		o.TotalCost += resp.Cost
		o.TotalTokens += resp.Tokens.Total
		totalLatency += latency
		if failed {
			errs++
		}
		if l.FallbackUsed {
			fallbacks++
		}

		model := resp.Model
		if model == "" {
			model = "unknown"
		}
		ms, ok := o.ByModel[model]
		if !ok {
			ms = &models.ModelStats{}
			o.ByModel[model] = ms
		}
		ms.Requests++
		ms.Cost += resp.Cost
		ms.Tokens += resp.Tokens.Total
		if failed {
			ms.Errors++
		}
		ms.AvgLatency = runningMean(ms.AvgLatency, latency, ms.Requests)

		task := string(l.Request.TaskType.OrDefault())
		ts, ok := o.ByTaskType[task]
		if !ok {
			ts = &models.TaskStats{}
			o.ByTaskType[task] = ts
		}
		ts.Requests++
		ts.Cost += resp.Cost
		ts.AvgLatency = runningMean(ts.AvgLatency, latency, ts.Requests)

		day := l.Day()
		ds, ok := o.ByDay[day]
		if !ok {
			ds = &models.DayStats{}
			o.ByDay[day] = ds
		}
		ds.Requests++
		ds.Cost += resp.Cost
		if failed {
			ds.Errors++
		}
	}

	n := float64(len(logs))
	o.TotalRequests = len(logs)
	o.AvgLatency = totalLatency / n
	o.ErrorRate = float64(errs) / n
	o.FallbackRate = float64(fallbacks) / n
	return o
}

// runningMean folds x into mean, where n counts x.
func runningMean(mean, x float64, n int) float64 {
	return mean + (x-mean)/float64(n)
}
