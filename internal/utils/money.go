package utils

import (
	"fmt"
	"math"
)

// RoundMoney rounds to two decimal places, half away from zero.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// FormatPounds renders an amount with the currency sign and thousand separators.
func FormatPounds(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := int64(math.Round(amount * 100))
	return fmt.Sprintf("%s£%s.%02d", sign, formatThousand(cents/100), cents%100)
}

func formatThousand(n int64) string {
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		pos := len(s) - i - 1
		if pos > 0 && pos%3 == 0 {
			out = append(out, ',')
		}
	}
	return string(out)
}
