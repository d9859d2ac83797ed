package notify

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies whose minor unit is the major unit.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount renders minor units as a display amount, e.g. 5000 usd -> "50.00 USD".
func FormatAmount(minor int64, currency string) string {
	currency = strings.ToLower(currency)
	if currency == "" {
		currency = "usd"
	}
	if zeroDecimalCurrencies[currency] {
		return decimal.NewFromInt(minor).String() + " " + strings.ToUpper(currency)
	}
	return decimal.New(minor, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}
