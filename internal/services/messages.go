package services

import (
	"fmt"
	"strconv"

	"golang.org/x/text/language"
)

// Storefront-facing copy shown by the pricing flow. Portuguese is the
// default; locale negotiation falls back to it for anything unmatched.
var messageLocales = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
}

var messageMatcher = language.NewMatcher(messageLocales)

type messageCatalog struct {
	blankCoupon       string
	invalidCoupon     string
	couponUnavailable string
	minPurchase       func(min string) string
	couponApplied     func(discount string) string
	percentOff        func(percent string) string
	fixedPerLine      func(amount string) string
	buyXPayY          func(buy, pay int) string
	progressiveTier   func(percent string, minItems int) string
}

var catalogPTBR = messageCatalog{
	blankCoupon:       "Informe um código de cupom.",
	invalidCoupon:     "Cupom inválido ou expirado.",
	couponUnavailable: "Não foi possível validar o cupom. Tente novamente.",
	minPurchase: func(min string) string {
		return fmt.Sprintf("Compra mínima de %s para usar este cupom.", min)
	},
	couponApplied: func(discount string) string {
		return fmt.Sprintf("Cupom aplicado! Desconto de %s.", discount)
	},
	percentOff: func(percent string) string {
		return fmt.Sprintf("%s%% de desconto", percent)
	},
	fixedPerLine: func(amount string) string {
		return fmt.Sprintf("Desconto de %s por produto", amount)
	},
	buyXPayY: func(buy, pay int) string {
		return fmt.Sprintf("Leve %d, pague %d", buy, pay)
	},
	progressiveTier: func(percent string, minItems int) string {
		return fmt.Sprintf("%s%% de desconto a partir de %d itens", percent, minItems)
	},
}

var catalogEN = messageCatalog{
	blankCoupon:       "Enter a coupon code.",
	invalidCoupon:     "Invalid or expired coupon.",
	couponUnavailable: "Could not validate the coupon. Please try again.",
	minPurchase: func(min string) string {
		return fmt.Sprintf("Minimum purchase of %s to use this coupon.", min)
	},
	couponApplied: func(discount string) string {
		return fmt.Sprintf("Coupon applied! %s off.", discount)
	},
	percentOff: func(percent string) string {
		return fmt.Sprintf("%s%% off", percent)
	},
	fixedPerLine: func(amount string) string {
		return fmt.Sprintf("%s off per product", amount)
	},
	buyXPayY: func(buy, pay int) string {
		return fmt.Sprintf("Buy %d, pay %d", buy, pay)
	},
	progressiveTier: func(percent string, minItems int) string {
		return fmt.Sprintf("%s%% off from %d items", percent, minItems)
	},
}

func catalogForLocale(locale string) messageCatalog {
	_, index := language.MatchStrings(messageMatcher, locale)
	if index >= 0 && index < len(messageLocales) && messageLocales[index] == language.English {
		return catalogEN
	}
	return catalogPTBR
}

// formatAmount renders a minor-unit amount the way the storefront displays
// prices, e.g. 5000 -> "R$ 50.00".
func formatAmount(amount int64) string {
	if amount < 0 {
		amount = 0
	}
	return fmt.Sprintf("R$ %d.%02d", amount/100, amount%100)
}

// formatPercent renders a percent value without trailing zeros.
func formatPercent(percent float64) string {
	return strconv.FormatFloat(percent, 'f', -1, 64)
}
