package services

import (
	"strings"

	domain "github.com/vitrinehub/api/internal/domain"
)

// EligibleLines returns the subset of cart lines a promotion governs.
// Product scopes match on product id. Category scopes cannot be resolved
// here because cart lines carry no category linkage, so they fall back to
// the full cart, the same as an unrestricted scope.
func EligibleLines(promo domain.Promotion, lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return nil
	}

	switch promo.Scope.Kind {
	case domain.ScopeProducts:
		if len(promo.Scope.ProductIDs) == 0 {
			return nil
		}
		ids := make(map[string]struct{}, len(promo.Scope.ProductIDs))
		for _, id := range promo.Scope.ProductIDs {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				ids[trimmed] = struct{}{}
			}
		}
		eligible := make([]domain.CartLine, 0, len(lines))
		for _, line := range lines {
			if _, ok := ids[strings.TrimSpace(line.ProductID)]; ok {
				eligible = append(eligible, line)
			}
		}
		return eligible
	default:
		eligible := make([]domain.CartLine, len(lines))
		copy(eligible, lines)
		return eligible
	}
}

func lineIdentityKeys(lines []domain.CartLine) []string {
	if len(lines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, line.IdentityKey())
	}
	return keys
}

func sumLineValue(lines []domain.CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.LineTotal()
	}
	return total
}

func sumLineQuantity(lines []domain.CartLine) int {
	var total int
	for _, line := range lines {
		if line.Quantity > 0 {
			total += line.Quantity
		}
	}
	return total
}
