package services

import (
	"testing"

	domain "github.com/vitrinehub/api/internal/domain"
)

func TestEligibleLinesAllScope(t *testing.T) {
	promo := domain.Promotion{Scope: domain.PromotionScope{Kind: domain.ScopeAll}}
	lines := []domain.CartLine{
		testLine("prod-1", 1000, 1),
		testLine("prod-2", 2000, 2),
	}

	eligible := EligibleLines(promo, lines)
	if len(eligible) != 2 {
		t.Fatalf("expected all lines eligible, got %d", len(eligible))
	}
}

func TestEligibleLinesProductScope(t *testing.T) {
	promo := domain.Promotion{
		Scope: domain.PromotionScope{
			Kind:       domain.ScopeProducts,
			ProductIDs: []string{"prod-2"},
		},
	}
	lines := []domain.CartLine{
		testLine("prod-1", 1000, 1),
		testLine("prod-2", 2000, 2),
	}

	eligible := EligibleLines(promo, lines)
	if len(eligible) != 1 || eligible[0].ProductID != "prod-2" {
		t.Fatalf("expected only prod-2 eligible, got %+v", eligible)
	}
}

func TestEligibleLinesProductScopeWithoutIDs(t *testing.T) {
	promo := domain.Promotion{Scope: domain.PromotionScope{Kind: domain.ScopeProducts}}
	lines := []domain.CartLine{testLine("prod-1", 1000, 1)}

	if eligible := EligibleLines(promo, lines); len(eligible) != 0 {
		t.Fatalf("expected no eligible lines, got %+v", eligible)
	}
}

func TestEligibleLinesCategoryScopeFallsBackToFullCart(t *testing.T) {
	promo := domain.Promotion{
		Scope: domain.PromotionScope{
			Kind:        domain.ScopeCategories,
			CategoryIDs: []string{"canecas"},
		},
	}
	lines := []domain.CartLine{
		testLine("prod-1", 1000, 1),
		testLine("prod-2", 2000, 2),
	}

	eligible := EligibleLines(promo, lines)
	if len(eligible) != 2 {
		t.Fatalf("expected category scope to cover the full cart, got %d lines", len(eligible))
	}
}

func TestEligibleLinesEmptyCart(t *testing.T) {
	promo := domain.Promotion{Scope: domain.PromotionScope{Kind: domain.ScopeAll}}
	if eligible := EligibleLines(promo, nil); eligible != nil {
		t.Fatalf("expected nil for an empty cart, got %+v", eligible)
	}
}

func TestEligibleLinesDoesNotAliasInput(t *testing.T) {
	promo := domain.Promotion{Scope: domain.PromotionScope{Kind: domain.ScopeAll}}
	lines := []domain.CartLine{testLine("prod-1", 1000, 1)}

	eligible := EligibleLines(promo, lines)
	eligible[0].Quantity = 42
	if lines[0].Quantity != 1 {
		t.Fatal("expected the input slice to stay untouched")
	}
}
