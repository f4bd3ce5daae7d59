package service

import (
	"fmt"
	"strings"

	"aptos-x402-gateway/internal/core/domain"
)

// RuleResolver maps request paths to payment rules.
// Rules are matched exactly first, then by prefix in registration order,
// so more specific prefixes must be registered first.
type RuleResolver struct {
	rules []domain.PaymentRule
	exact map[string]int
}

// NewRuleResolver validates rules and builds a resolver over them.
func NewRuleResolver(rules []domain.PaymentRule) (*RuleResolver, error) {
	r := &RuleResolver{
		rules: make([]domain.PaymentRule, 0, len(rules)),
		exact: make(map[string]int, len(rules)),
	}
	for _, rule := range rules {
		if rule.Path == "" {
			return nil, fmt.Errorf("payment rule without path")
		}
		if !domain.IsValidAmount(rule.Amount) {
			return nil, fmt.Errorf("payment rule %s: invalid amount %q", rule.Path, rule.Amount)
		}
		if !domain.IsValidAddress(rule.RecipientAddress) {
			return nil, fmt.Errorf("payment rule %s: invalid recipient %q", rule.Path, rule.RecipientAddress)
		}
		if _, dup := r.exact[rule.Path]; dup {
			return nil, fmt.Errorf("payment rule %s registered twice", rule.Path)
		}
		r.exact[rule.Path] = len(r.rules)
		r.rules = append(r.rules, rule)
	}
	return r, nil
}

// Resolve returns the rule gating path, if any.
func (r *RuleResolver) Resolve(path string) (domain.PaymentRule, bool) {
	if i, ok := r.exact[path]; ok {
		return r.rules[i], true
	}
	for _, rule := range r.rules {
		if strings.HasPrefix(path, rule.Path) {
			return rule, true
		}
	}
	return domain.PaymentRule{}, false
}

// Rules returns the configured rules in registration order.
func (r *RuleResolver) Rules() []domain.PaymentRule {
	out := make([]domain.PaymentRule, len(r.rules))
	copy(out, r.rules)
	return out
}
