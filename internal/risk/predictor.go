package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
)

// Scoring model: each metric contributes a weighted, normalized deviation
// from its healthy baseline. Deviations are clamped to [0, 1] before
// weighting, and the final score to [0, 100].
type metricModel struct {
	metric   string
	weight   float64
	baseline float64
	// deviation maps a raw value to [0, 1], where 1 is maximally unhealthy.
	deviation func(value, baseline float64) float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func belowBaseline(value, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return clamp01((baseline - value) / baseline)
}

func aboveZero(value, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return clamp01(value / baseline)
}

// models is ordered by weight; factor output preserves this order for
// equal contributions.
var models = []metricModel{
	{metric: metricstore.MetricComplianceScore, weight: 0.5, baseline: 70, deviation: belowBaseline},
	{metric: metricstore.MetricTrainingHours, weight: 0.3, baseline: 20, deviation: belowBaseline},
	// Five violations saturate the deviation.
	{metric: metricstore.MetricViolationCount, weight: 0.2, baseline: 5, deviation: aboveZero},
}

// Factor is one metric's contribution to an entity's risk score.
type Factor struct {
	Metric       string  `json:"metric"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description"`
}

// Prediction is the scored risk posture of one entity.
type Prediction struct {
	EntityID   uint    `json:"entity_id"`
	EntityName string  `json:"entity_name"`
	Region     string  `json:"region"`
	Score      float64 `json:"score"`
	Band       string  `json:"band"`
	Trajectory string  `json:"trajectory"`
	// Factors are ordered by contribution, largest first.
	Factors []Factor `json:"factors"`
}

// Predictor scores entities from current metrics and history.
type Predictor struct {
	provider       metricstore.Provider
	historyPeriods int
	log            logger.Logger
}

// NewPredictor creates a Predictor reading from the given provider.
func NewPredictor(provider metricstore.Provider, historyPeriods int, log logger.Logger) *Predictor {
	if log == nil {
		log = logger.Default()
	}
	return &Predictor{provider: provider, historyPeriods: historyPeriods, log: log}
}

// ScoreMetrics computes the 0-100 risk score for one set of metric values.
// Metrics absent from the snapshot contribute nothing.
func ScoreMetrics(metrics map[string]float64) (float64, []Factor) {
	var score float64
	factors := make([]Factor, 0, len(models))
	for _, m := range models {
		value, ok := metrics[m.metric]
		if !ok {
			continue
		}
		contribution := m.weight * m.deviation(value, m.baseline) * 100
		score += contribution
		if contribution > 0 {
			factors = append(factors, Factor{
				Metric:       m.metric,
				Value:        value,
				Contribution: contribution,
				Description:  describeFactor(m.metric, value),
			})
		}
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Contribution > factors[j].Contribution
	})
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, factors
}

// Predict scores one entity, classifying its trajectory from history.
func (p *Predictor) Predict(ctx context.Context, em *metricstore.EntityMetrics) (*Prediction, error) {
	score, factors := ScoreMetrics(em.Metrics)

	history, err := p.provider.History(ctx, em.EntityID, p.historyPeriods)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for entity %d: %w", em.EntityID, err)
	}

	return &Prediction{
		EntityID:   em.EntityID,
		EntityName: em.EntityName,
		Region:     em.Region,
		Score:      score,
		Band:       BandForScore(score),
		Trajectory: classifyTrajectory(history),
		Factors:    factors,
	}, nil
}

// PredictAll scores every entity in the current snapshot, highest risk
// first.
func (p *Predictor) PredictAll(ctx context.Context) ([]Prediction, error) {
	snapshot, err := p.provider.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric snapshot: %w", err)
	}

	out := make([]Prediction, 0, len(snapshot))
	for i := range snapshot {
		pred, err := p.Predict(ctx, &snapshot[i])
		if err != nil {
			// One entity's broken history should not hide the rest.
			p.log.Warn("skipping entity in risk scan",
				logger.Uint64("entity_id", uint64(snapshot[i].EntityID)),
				logger.Error(err))
			continue
		}
		out = append(out, *pred)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// classifyTrajectory scores each history period and classifies the mean
// per-period delta. Fewer than two periods reads as stable.
func classifyTrajectory(history []metricstore.HistoryPoint) string {
	if len(history) < 2 {
		return TrajectoryStable
	}
	scores := make([]float64, len(history))
	for i, hp := range history {
		scores[i], _ = ScoreMetrics(hp.Metrics)
	}
	var sum float64
	for i := 1; i < len(scores); i++ {
		sum += scores[i] - scores[i-1]
	}
	mean := sum / float64(len(scores)-1)
	return TrajectoryForDelta(mean)
}

// FactorCount is how often one metric appears as a risk factor across a
// set of predictions.
type FactorCount struct {
	Metric      string `json:"metric"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// CommonFactors aggregates factor frequency across predictions, most
// common first. Only medium-or-worse entities are counted; a low-band
// entity's minor deviations are noise.
func CommonFactors(predictions []Prediction) []FactorCount {
	counts := make(map[string]int)
	for i := range predictions {
		if predictions[i].Band == BandLow {
			continue
		}
		for _, f := range predictions[i].Factors {
			counts[f.Metric]++
		}
	}
	out := make([]FactorCount, 0, len(counts))
	for metric, count := range counts {
		out = append(out, FactorCount{
			Metric:      metric,
			Count:       count,
			Description: describeMetric(metric),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

func describeFactor(metric string, value float64) string {
	switch metric {
	case metricstore.MetricComplianceScore:
		return fmt.Sprintf("compliance score %.0f below healthy baseline", value)
	case metricstore.MetricTrainingHours:
		return fmt.Sprintf("only %.1f training hours logged", value)
	case metricstore.MetricViolationCount:
		return fmt.Sprintf("%.0f recorded violations", value)
	default:
		return fmt.Sprintf("%s at %.2f", metric, value)
	}
}

func describeMetric(metric string) string {
	switch metric {
	case metricstore.MetricComplianceScore:
		return "low compliance score"
	case metricstore.MetricTrainingHours:
		return "insufficient training hours"
	case metricstore.MetricViolationCount:
		return "recorded violations"
	default:
		return metric
	}
}
