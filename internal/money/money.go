// Package money holds the currency and business-date helpers shared by the
// till, the service layer and the report renderers. Amounts are always int64
// in the currency's smallest unit.
package money

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// DiscountPercent is the fixed house discount applied at payment time.
const DiscountPercent = 10

var CurrencyPrefix = "Rp "

// FormatCurrency renders 1500000 as "Rp 1.500.000".
func FormatCurrency(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + CurrencyPrefix + AddThousandsSeparators(amount, ".")
}

func AddThousandsSeparators(value int64, sep string) string {
	strValue := strconv.FormatInt(value, 10)
	var parts []string
	for i := len(strValue); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		parts = append([]string{strValue[start:i]}, parts...)
	}
	return strings.Join(parts, sep)
}

// BusinessDate returns the calendar date of t in loc. A nil loc means local time.
func BusinessDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

func ParseBusinessDate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := time.Parse(DateLayout, trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid business date %q", raw)
	}
	return parsed.Format(DateLayout), nil
}

// ApplyDiscount takes the fixed discount off total, rounding the collected
// amount half-up to the smallest unit.
func ApplyDiscount(total int64) (collected int64, discount int64) {
	if total <= 0 {
		return total, 0
	}
	collected = roundHalfUpDiv(total*(100-DiscountPercent), 100)
	return collected, total - collected
}

func roundHalfUpDiv(numerator int64, denominator int64) int64 {
	return (numerator*2 + denominator) / (denominator * 2)
}
