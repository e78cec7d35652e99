package rules

import (
	"sort"
	"time"

	"github.com/vatops/vatcalc/internal/domain"
)

// RuleSet is an immutable snapshot of rules supporting candidate selection.
type RuleSet struct {
	rules []domain.Rule
}

// NewRuleSet copies the given rules into a snapshot.
func NewRuleSet(rules []domain.Rule) RuleSet {
	return RuleSet{rules: append([]domain.Rule(nil), rules...)}
}

// Len returns the number of rules in the set.
func (rs RuleSet) Len() int { return len(rs.rules) }

// Candidates returns the rules matching country, optional type scope, and
// the effective window at asOf, for active rules only.
func (rs RuleSet) Candidates(countryCode string, ruleType *domain.RuleType, asOf time.Time) []domain.Rule {
	var out []domain.Rule
	for _, r := range rs.rules {
		if r.CountryCode != countryCode || !r.IsActive {
			continue
		}
		if ruleType != nil && r.Type != *ruleType {
			continue
		}
		if !r.EffectiveAt(asOf) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Applicable narrows Candidates to rules whose conditions hold in ctx and
// returns them in application order.
func (rs RuleSet) Applicable(matcher *Matcher, countryCode string, ruleType *domain.RuleType, asOf time.Time, ctx domain.Context) []domain.Rule {
	candidates := rs.Candidates(countryCode, ruleType, asOf)
	out := candidates[:0]
	for _, r := range candidates {
		if matcher.Matches(r.Conditions, ctx) {
			out = append(out, r)
		}
	}
	SortForApplication(out)
	return out
}

// SortForApplication orders rules ascending by priority, breaking ties by
// rule ID so the application order is deterministic for equal priorities.
func SortForApplication(rules []domain.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
