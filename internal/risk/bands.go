// Package risk scores entities by how likely they are to fall out of
// compliance, and classifies scores into bands shared by the predictor,
// the evaluation engine and the dashboard.
package risk

// Risk bands. Score boundaries live here and nowhere else so that every
// consumer classifies identically.
const (
	BandLow      = "low"
	BandMedium   = "medium"
	BandHigh     = "high"
	BandCritical = "critical"
)

// Band boundaries on the 0-100 risk score.
const (
	mediumFloor   = 35.0
	highFloor     = 60.0
	criticalFloor = 80.0
)

// BandForScore classifies a 0-100 risk score.
func BandForScore(score float64) string {
	switch {
	case score >= criticalFloor:
		return BandCritical
	case score >= highFloor:
		return BandHigh
	case score >= mediumFloor:
		return BandMedium
	default:
		return BandLow
	}
}

// Regional health statuses derived from open alerts per 10k licensed
// entities.
const (
	HealthHealthy  = "healthy"
	HealthElevated = "elevated"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Per-10k alert rate boundaries.
const (
	elevatedRateFloor = 25.0
	warningRateFloor  = 75.0
	criticalRateFloor = 150.0
)

// HealthStatusForRate classifies a region's open alerts per 10k entities.
func HealthStatusForRate(ratePer10k float64) string {
	switch {
	case ratePer10k >= criticalRateFloor:
		return HealthCritical
	case ratePer10k >= warningRateFloor:
		return HealthWarning
	case ratePer10k >= elevatedRateFloor:
		return HealthElevated
	default:
		return HealthHealthy
	}
}

// Trajectory classes describing how an entity's risk score moves across
// history periods.
const (
	TrajectoryImproving       = "improving"
	TrajectoryStable          = "stable"
	TrajectoryDeclining       = "declining"
	TrajectoryCriticalDecline = "critical_decline"
)

// Mean per-period risk delta boundaries.
const (
	improvingDelta       = -2.0
	decliningDelta       = 2.0
	criticalDeclineDelta = 8.0
)

// TrajectoryForDelta classifies the mean per-period change of the risk
// score. Positive deltas mean risk is growing.
func TrajectoryForDelta(meanDelta float64) string {
	switch {
	case meanDelta >= criticalDeclineDelta:
		return TrajectoryCriticalDecline
	case meanDelta >= decliningDelta:
		return TrajectoryDeclining
	case meanDelta <= improvingDelta:
		return TrajectoryImproving
	default:
		return TrajectoryStable
	}
}
