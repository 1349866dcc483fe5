// Package progression derives skill level, stage and activity status from a
// ledger entry's accumulated points and recency.
package progression

import (
	"time"

	"github.com/okian/questlog/internal/domain/model"
)

// Stage is a coarse band of levels used for display.
type Stage string

// Stages.
const (
	StageLearning   Stage = "Learning"
	StageApplying   Stage = "Applying"
	StageMastering  Stage = "Mastering"
	StageInnovating Stage = "Innovating"
)

// ActivityStatus is a recency signal. It never reduces points.
type ActivityStatus string

// Activity statuses.
const (
	ActivityActive ActivityStatus = "ACTIVE"
	ActivityStale  ActivityStatus = "STALE"
	ActivityRusty  ActivityStatus = "RUSTY"
)

// Recency windows.
const (
	day         = 24 * time.Hour
	StaleAfter  = 30 * day
	RustyAfter  = 90 * day
	fullPercent = 100.0
)

// DefaultThresholds are the minimum cumulative points for levels 1..10.
var DefaultThresholds = ThresholdTable{0, 100, 250, 450, 700, 1000, 1400, 1900, 2500, 3200}

// ThresholdTable maps level (index+1) to the minimum cumulative points.
type ThresholdTable []int

// Valid reports whether the table starts at zero and strictly increases.
func (t ThresholdTable) Valid() bool {
	if len(t) == 0 || t[0] != 0 {
		return false
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return false
		}
	}
	return true
}

// effective returns the table to compute with; misconfigured tables
// collapse to a single level.
func (t ThresholdTable) effective() ThresholdTable {
	if t.Valid() {
		return t
	}
	return ThresholdTable{0}
}

// Level returns the highest level whose floor does not exceed total.
func (t ThresholdTable) Level(total int) int {
	tbl := t.effective()
	level := 1
	for i, floor := range tbl {
		if floor > total {
			break
		}
		level = i + 1
	}
	return level
}

// MaxLevel returns the highest level the table defines.
func (t ThresholdTable) MaxLevel() int {
	return len(t.effective())
}

// Progress describes the position between the current and the next level.
type Progress struct {
	Percent  float64
	XPInto   int
	XPNeeded int
}

// Progress interpolates linearly between the floor of level and the floor of
// the next level. At the maximum level it reports 100% and nothing needed.
func (t ThresholdTable) Progress(level, total int) Progress {
	tbl := t.effective()
	if level < 1 {
		level = 1
	}
	if level > len(tbl) {
		level = len(tbl)
	}
	floor := tbl[level-1]
	into := total - floor
	if into < 0 {
		into = 0
	}
	if level == len(tbl) {
		return Progress{Percent: fullPercent, XPInto: into, XPNeeded: 0}
	}
	next := tbl[level]
	span := next - floor
	if into > span {
		into = span
	}
	return Progress{
		Percent:  float64(into) * fullPercent / float64(span),
		XPInto:   into,
		XPNeeded: span - into,
	}
}

// DeriveStage bands a level: 1-3 Learning, 4-6 Applying, 7-9 Mastering,
// 10 and above Innovating.
func DeriveStage(level int) Stage {
	switch {
	case level >= 10:
		return StageInnovating
	case level >= 7:
		return StageMastering
	case level >= 4:
		return StageApplying
	default:
		return StageLearning
	}
}

// DeriveActivityStatus reports ACTIVE under 30 days since the last award,
// STALE from 30 to 89 days, and RUSTY from 90 days or when never awarded.
func DeriveActivityStatus(lastAwardedAt *time.Time, now time.Time) ActivityStatus {
	if lastAwardedAt == nil || lastAwardedAt.IsZero() {
		return ActivityRusty
	}
	elapsed := now.Sub(*lastAwardedAt)
	switch {
	case elapsed < StaleAfter:
		return ActivityActive
	case elapsed < RustyAfter:
		return ActivityStale
	default:
		return ActivityRusty
	}
}

// Fold adds an award to an entry. Points only grow; the last award time only
// moves forward.
func Fold(e model.SkillLedgerEntry, points int, awardedAt time.Time) model.SkillLedgerEntry {
	if points > 0 {
		e.TotalPoints += points
	}
	if e.LastAwardedAt == nil || awardedAt.After(*e.LastAwardedAt) {
		at := awardedAt.UTC()
		e.LastAwardedAt = &at
	}
	return e
}

// Standing is the read model of one ledger entry.
type Standing struct {
	SkillName      string
	TotalPoints    int
	LastAwardedAt  *time.Time
	Level          int
	Stage          Stage
	ActivityStatus ActivityStatus
	Progress       Progress
}

// Derive computes the read model of e at now.
func (t ThresholdTable) Derive(e model.SkillLedgerEntry, now time.Time) Standing {
	level := t.Level(e.TotalPoints)
	return Standing{
		SkillName:      e.SkillName,
		TotalPoints:    e.TotalPoints,
		LastAwardedAt:  e.LastAwardedAt,
		Level:          level,
		Stage:          DeriveStage(level),
		ActivityStatus: DeriveActivityStatus(e.LastAwardedAt, now),
		Progress:       t.Progress(level, e.TotalPoints),
	}
}
