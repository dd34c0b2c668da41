package voucher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Source looks vouchers up by code.
type Source interface {
	Rule(ctx context.Context, code string) (Rule, error)
}

// StaticSource holds rules loaded from configuration.
type StaticSource struct {
	rules map[string]Rule
}

// NewStaticSource indexes rules by upper-cased code.
func NewStaticSource(rules ...Rule) *StaticSource {
	s := &StaticSource{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		s.rules[NormalizeCode(r.Code)] = r
	}
	return s
}

// Rule implements Source.
func (s *StaticSource) Rule(_ context.Context, code string) (Rule, error) {
	if s == nil {
		return Rule{}, ErrNotFound
	}
	r, ok := s.rules[NormalizeCode(code)]
	if !ok {
		return Rule{}, ErrNotFound
	}
	r.ProductIDs = append([]string(nil), r.ProductIDs...)
	return r, nil
}

// NormalizeCode trims and upper-cases a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseRules reads a comma-separated list of CODE:KIND:VALUE[:MINSPEND[:PRODUCT|PRODUCT]].
// For percent vouchers VALUE is in basis points, so "WELCOME10:percent:1000:5000"
// takes 10% off carts of at least 5000.
func ParseRules(raw string) ([]Rule, error) {
	var rules []Rule
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("voucher %q: expected CODE:KIND:VALUE", entry)
		}
		r := Rule{Code: NormalizeCode(parts[0]), Kind: Kind(strings.ToLower(strings.TrimSpace(parts[1])))}
		if r.Code == "" {
			return nil, fmt.Errorf("voucher %q: empty code", entry)
		}
		value := strings.TrimSpace(parts[2])
		switch r.Kind {
		case Percent:
			bps, err := strconv.ParseInt(value, 10, 32)
			if err != nil || bps <= 0 || bps > 10000 {
				return nil, fmt.Errorf("voucher %s: invalid basis points %q", r.Code, value)
			}
			r.PercentBps = int32(bps)
		case Fixed:
			v, err := decimal.NewFromString(value)
			if err != nil || !v.IsPositive() {
				return nil, fmt.Errorf("voucher %s: invalid amount %q", r.Code, value)
			}
			r.Value = v
		default:
			return nil, fmt.Errorf("voucher %s: unknown kind %q", r.Code, parts[1])
		}
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			minSpend, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
			if err != nil || minSpend.IsNegative() {
				return nil, fmt.Errorf("voucher %s: invalid minimum spend %q", r.Code, parts[3])
			}
			r.MinSpend = minSpend
		}
		if len(parts) > 4 {
			for _, id := range strings.Split(parts[4], "|") {
				if id = strings.TrimSpace(id); id != "" {
					r.ProductIDs = append(r.ProductIDs, id)
				}
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}
