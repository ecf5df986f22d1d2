package rules

import (
	"github.com/halver/herald/shared"
)

// Run executes the provided rules in registration order against one snapshot
// and closed candle pair. A failing rule is logged and skipped so it cannot
// block the others. Empty and duplicate findings are dropped, and the order
// in which distinct findings were first produced is preserved.
func (s *Set) Run(rules []Rule, snapshot *shared.LiveSnapshot, candle *shared.ClosedCandle) []string {
	findings := make([]string, 0, len(rules))

	for idx := range rules {
		finding, fired := s.evaluateRule(&rules[idx], snapshot, candle)
		if !fired || finding == "" {
			continue
		}

		var duplicate bool
		for k := range findings {
			if findings[k] == finding {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		findings = append(findings, finding)
	}

	return findings
}

// evaluateRule evaluates a single rule, recovering from rule panics so one
// broken rule cannot abort the pass.
func (s *Set) evaluateRule(rule *Rule, snapshot *shared.LiveSnapshot, candle *shared.ClosedCandle) (finding string, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error().Msgf("rule %s panicked: %v", rule.Name, r)
			finding, fired = "", false
		}
	}()

	return rule.Eval(snapshot, candle)
}

// Needs returns the union of indicator kinds declared by the provided rules.
func Needs(rules []Rule) shared.IndicatorKindSet {
	var kinds shared.IndicatorKindSet
	for idx := range rules {
		kinds = kinds.Merge(rules[idx].Needs)
	}

	return kinds
}
