package usecase

import "context"

// ModelMetrics summarises persisted predictions for one model.
type ModelMetrics struct {
	Model              string  `json:"model"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// MetricsSummary represents aggregated prediction insights.
type MetricsSummary struct {
	TotalRequests      int64          `json:"total_requests"`
	SuccessfulRequests int64          `json:"successful_requests"`
	SuccessRate        float64        `json:"success_rate"`
	Models             []ModelMetrics `json:"models"`
}

// GetMetricsSummary aggregates prediction metrics from persisted logs.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.audit == nil {
		return nil, ErrAuditDisabled
	}
	rows, err := uc.audit.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{Models: make([]ModelMetrics, 0, len(rows))}
	for _, row := range rows {
		m := ModelMetrics{
			Model:              row.Model,
			TotalRequests:      row.TotalCount,
			SuccessfulRequests: row.SuccessCount,
			AverageLatencyMs:   row.AverageLatencyMs,
		}
		if row.TotalCount > 0 {
			m.SuccessRate = float64(row.SuccessCount) / float64(row.TotalCount)
		}
		summary.Models = append(summary.Models, m)
		summary.TotalRequests += row.TotalCount
		summary.SuccessfulRequests += row.SuccessCount
	}

	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRequests) / float64(summary.TotalRequests)
	}

	return summary, nil
}
