// Package health maps a cluster Snapshot to 0..100 health scores.
//
// Each role is scored independently: start at 100, subtract every matching
// deduction, clamp to [0, 100]. Lag deductions use the lag observed by the
// role being scored. The combined cluster score is the worse of the two.
package health

import (
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

type Tier string

const (
	TierHealthy  Tier = "healthy"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

const (
	MaxScore = 100
	MinScore = 0

	healthyFrom = 70
	warningFrom = 50
)

const (
	LagBytesWarn     int64   = 1 << 20  // 1 MiB
	LagBytesCritical int64   = 10 << 20 // 10 MiB
	LagSecondsWarn   float64 = 5
	LagSecondsCrit   float64 = 30
)

const (
	deductPrimaryDown      = 50
	deductNoReplication    = 50
	deductStandbyDown      = 30
	deductNotInRecovery    = 30
	deductLagBytesCritical = 30
	deductLagBytesWarn     = 10
	deductLagSecondsCrit   = 20
	deductLagSecondsWarn   = 5
)

type Score struct {
	Score int  `json:"score"`
	Tier  Tier `json:"status"`
}

type Scores struct {
	Primary  Score
	Standby  Score
	Combined Score
}

func TierFor(score int) Tier {
	switch {
	case score >= healthyFrom:
		return TierHealthy
	case score >= warningFrom:
		return TierWarning
	default:
		return TierCritical
	}
}

func newScore(deductions int) Score {
	s := MaxScore - deductions
	if s < MinScore {
		s = MinScore
	}
	if s > MaxScore {
		s = MaxScore
	}
	return Score{Score: s, Tier: TierFor(s)}
}

// LagDeduction returns the points lost for a lag reading. Unknown values cost nothing.
func LagDeduction(lagBytes *int64, lagSeconds *float64) int {
	d := 0
	if lagBytes != nil {
		switch {
		case *lagBytes > LagBytesCritical:
			d += deductLagBytesCritical
		case *lagBytes > LagBytesWarn:
			d += deductLagBytesWarn
		}
	}
	if lagSeconds != nil {
		switch {
		case *lagSeconds > LagSecondsCrit:
			d += deductLagSecondsCrit
		case *lagSeconds > LagSecondsWarn:
			d += deductLagSecondsWarn
		}
	}
	return d
}

func ScorePrimary(r pg.Result) Score {
	if !r.Reachable {
		return newScore(deductPrimaryDown)
	}
	d := 0
	if r.ReplicationConnections != nil && *r.ReplicationConnections == 0 {
		d += deductNoReplication
	}
	d += LagDeduction(r.LagBytes, r.LagSeconds)
	return newScore(d)
}

func ScoreStandby(r pg.Result) Score {
	if !r.Reachable {
		return newScore(deductStandbyDown)
	}
	d := 0
	if r.InRecovery != nil && !*r.InRecovery {
		d += deductNotInRecovery
	}
	d += LagDeduction(r.LagBytes, r.LagSeconds)
	return newScore(d)
}

// Evaluate scores both roles. Combined is min(primary, standby).
func Evaluate(s *snapshot.Snapshot) Scores {
	p := ScorePrimary(s.Primary)
	sb := ScoreStandby(s.Standby)
	combined := p
	if sb.Score < combined.Score {
		combined = sb
	}
	return Scores{Primary: p, Standby: sb, Combined: combined}
}
