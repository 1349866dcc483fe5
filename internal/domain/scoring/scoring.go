// Package scoring converts a reviewer's per-skill grade into experience
// points: base points by tier, scaled by a performance multiplier.
package scoring

import (
	"math"
	"strings"

	"github.com/okian/questlog/internal/domain/model"
)

// Performance labels.
const (
	LabelBelow       = "below_expectations"
	LabelMeets       = "meets_expectations"
	LabelExceeds     = "exceeds_expectations"
	LabelExceptional = "exceptional"
)

// Tier bounds.
const (
	MinTier = 1
	MaxTier = 5
)

// multipliers are applied in thousandths so rounding is exact.
const permille = 1000

// DefaultTierPoints are the base points for tiers 1..5.
var DefaultTierPoints = []int{20, 40, 60, 80, 100}

// DefaultMultipliers are the performance bands.
var DefaultMultipliers = map[string]float64{
	LabelBelow:       0.7,
	LabelMeets:       1.0,
	LabelExceeds:     1.25,
	LabelExceptional: 1.5,
}

// labelAliases maps reviewer-facing spellings onto canonical labels.
var labelAliases = map[string]string{
	"below":                LabelBelow,
	"below_expectations":   LabelBelow,
	"meets":                LabelMeets,
	"meets_expectations":   LabelMeets,
	"exceeds":              LabelExceeds,
	"exceeds_expectations": LabelExceeds,
	"exceptional":          LabelExceptional,
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTierPoints replaces the tier table. Tables that are not exactly five
// positive, strictly increasing values are ignored.
func WithTierPoints(points []int) Option {
	return func(e *Engine) {
		if len(points) != MaxTier {
			return
		}
		prev := 0
		for _, p := range points {
			if p <= prev {
				return
			}
			prev = p
		}
		e.tierPoints = append([]int(nil), points...)
	}
}

// WithMultipliers overrides performance bands. Unknown labels and
// non-positive factors are ignored.
func WithMultipliers(m map[string]float64) Option {
	return func(e *Engine) {
		for label, factor := range m {
			canon, ok := CanonicalLabel(label)
			if !ok || factor <= 0 {
				continue
			}
			e.multipliers[canon] = toPermille(factor)
		}
	}
}

// Grade is a reviewer's verdict on one skill of one submission.
type Grade struct {
	Label string
	Notes string
}

// Score is the computed award for one skill.
type Score struct {
	SkillName      string
	Tier           int
	BasePoints     int
	Label          string
	Multiplier     float64
	AdjustedPoints int
	Notes          string
}

// Engine computes awarded points. It is immutable after construction and
// safe for concurrent use.
type Engine struct {
	tierPoints  []int
	multipliers map[string]int64
}

// NewEngine creates an engine with default tables and the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tierPoints:  append([]int(nil), DefaultTierPoints...),
		multipliers: make(map[string]int64, len(DefaultMultipliers)),
	}
	for label, factor := range DefaultMultipliers {
		e.multipliers[label] = toPermille(factor)
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// BasePoints returns the base value for tier, falling back to the lowest
// tier when the tier is unknown.
func (e *Engine) BasePoints(tier int) (int, int) {
	if tier < MinTier || tier > MaxTier {
		tier = MinTier
	}
	return e.tierPoints[tier-1], tier
}

// Multiplier returns the factor for label, falling back to "meets
// expectations" when the label is unknown.
func (e *Engine) Multiplier(label string) (float64, string) {
	canon, ok := CanonicalLabel(label)
	if !ok {
		canon = LabelMeets
	}
	return float64(e.multipliers[canon]) / permille, canon
}

// ScoreSkill computes round(basePoints[tier] * multiplier[label]) with
// half-up rounding.
func (e *Engine) ScoreSkill(tier int, label string) int {
	return e.score(model.SkillRequirement{Tier: tier}, Grade{Label: label}).AdjustedPoints
}

// ScoreSubmission scores every skill required by a quest. Skills missing from
// grades are scored as meeting expectations.
func (e *Engine) ScoreSubmission(skills []model.SkillRequirement, grades map[string]Grade) []Score {
	out := make([]Score, 0, len(skills))
	for _, req := range skills {
		out = append(out, e.score(req, lookupGrade(grades, req.Name)))
	}
	return out
}

func (e *Engine) score(req model.SkillRequirement, g Grade) Score {
	base, tier := e.BasePoints(req.Tier)
	canon, ok := CanonicalLabel(g.Label)
	if !ok {
		canon = LabelMeets
	}
	m := e.multipliers[canon]
	return Score{
		SkillName:      req.Name,
		Tier:           tier,
		BasePoints:     base,
		Label:          canon,
		Multiplier:     float64(m) / permille,
		AdjustedPoints: int((int64(base)*m + permille/2) / permille),
		Notes:          g.Notes,
	}
}

// CanonicalLabel normalizes a reviewer label such as "Exceeds Expectations".
func CanonicalLabel(label string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.ReplaceAll(l, "-", "_")
	l = strings.ReplaceAll(l, " ", "_")
	canon, ok := labelAliases[l]
	return canon, ok
}

func lookupGrade(grades map[string]Grade, skill string) Grade {
	if g, ok := grades[skill]; ok {
		return g
	}
	for name, g := range grades {
		if strings.EqualFold(name, skill) {
			return g
		}
	}
	return Grade{}
}

func toPermille(f float64) int64 {
	return int64(math.Round(f * permille))
}
