package processor

import (
	"fmt"
	"math"
	"strings"
)

// FormatINR renders an amount with the rupee sign and Indian digit grouping:
// the last three digits form one group, every pair after that its own
// ("₹12,34,567"). Paise are shown only when present.
func FormatINR(amount float64) string {
	negative := amount < 0
	amount = math.Abs(amount)

	whole := int64(amount)
	paise := int64(math.Round((amount - float64(whole)) * 100))
	if paise == 100 {
		whole++
		paise = 0
	}

	grouped := groupIndian(whole)
	var b strings.Builder
	if negative {
		b.WriteString("-")
	}
	b.WriteString("₹")
	b.WriteString(grouped)
	if paise > 0 {
		fmt.Fprintf(&b, ".%02d", paise)
	}
	return b.String()
}

func groupIndian(n int64) string {
	digits := fmt.Sprintf("%d", n)
	if len(digits) <= 3 {
		return digits
	}
	head := digits[:len(digits)-3]
	tail := digits[len(digits)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}
