package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// ParseRules reads a rule table such as
//
//	flexible=24h:1,0s:0.5;strict=168h:0.5
//
// Each entry is a minimum notice and the fraction refunded at or beyond it.
// Policies not named keep their default rules. An empty string yields the
// defaults.
func ParseRules(s string) (map[domain.CancellationPolicy][]Rule, error) {
	out := make(map[domain.CancellationPolicy][]Rule, len(DefaultRules))
	for p, rs := range DefaultRules {
		out[p] = rs
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}

	for _, section := range strings.Split(s, ";") {
		name, body, ok := strings.Cut(strings.TrimSpace(section), "=")
		if !ok {
			return nil, fmt.Errorf("ParseRules: %q: missing '=': %w", section, domain.ErrValidation)
		}
		p := domain.CancellationPolicy(strings.ToLower(strings.TrimSpace(name)))
		if !p.IsValid() {
			return nil, fmt.Errorf("ParseRules: policy %q: %w", name, domain.ErrValidation)
		}

		var rules []Rule
		for _, item := range strings.Split(body, ",") {
			r, err := parseRule(strings.TrimSpace(item))
			if err != nil {
				return nil, fmt.Errorf("ParseRules: %s: %w", p, err)
			}
			rules = append(rules, r)
		}
		out[p] = rules
	}
	return out, nil
}

func parseRule(s string) (Rule, error) {
	notice, frac, ok := strings.Cut(s, ":")
	if !ok {
		return Rule{}, fmt.Errorf("rule %q: want notice:fraction: %w", s, domain.ErrValidation)
	}
	d, err := time.ParseDuration(notice)
	if err != nil || d < 0 {
		return Rule{}, fmt.Errorf("rule %q: notice: %w", s, domain.ErrValidation)
	}
	f, err := decimal.NewFromString(frac)
	if err != nil || f.IsNegative() || f.GreaterThan(decimal.NewFromInt(1)) {
		return Rule{}, fmt.Errorf("rule %q: fraction must be in [0, 1]: %w", s, domain.ErrValidation)
	}
	return Rule{MinNotice: d, Fraction: f}, nil
}
