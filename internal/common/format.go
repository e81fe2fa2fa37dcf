package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultWidth = 80

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title between two rules.
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintBoxSeparator closes the header block of a boxed section.
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the tree prefix for a list row.
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└ "
	}
	return "│ "
}

// FormatUSD renders a juice or fiat amount with cents and thousands separators.
func FormatUSD(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + cents
	if amount.IsNegative() {
		return "-" + out
	}
	return out
}

// FormatSignedUSD is FormatUSD with an explicit plus sign on credits.
func FormatSignedUSD(amount decimal.Decimal) string {
	if amount.IsPositive() {
		return "+" + FormatUSD(amount)
	}
	return FormatUSD(amount)
}
