package i18n

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency is the unit amounts are expressed in.
const Currency = "FCFA"

func tag(lang string) language.Tag {
	if lang == "en" {
		return language.English
	}
	return language.French
}

// FormatAmount renders an amount with the grouping and decimal separators of lang.
// Whole amounts are printed without decimals.
func FormatAmount(lang string, d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	digits := 0
	if !d.Round(2).Equal(d.Truncate(0)) {
		digits = 2
	}
	p := message.NewPrinter(tag(lang))
	return p.Sprint(number.Decimal(f, number.MinFractionDigits(digits), number.MaxFractionDigits(digits)))
}

// FormatMoney is FormatAmount followed by the currency.
func FormatMoney(lang string, d decimal.Decimal) string {
	return FormatAmount(lang, d) + " " + Currency
}

// FormatPercent renders a percentage with one decimal, e.g. "45,5 %" in French.
func FormatPercent(lang string, d decimal.Decimal) string {
	f, _ := d.Round(1).Float64()
	p := message.NewPrinter(tag(lang))
	s := p.Sprint(number.Decimal(f, number.MinFractionDigits(1), number.MaxFractionDigits(1)))
	if lang == "en" {
		return s + "%"
	}
	return s + " %"
}
