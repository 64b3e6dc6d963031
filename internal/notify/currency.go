package notify

import (
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var viPrinter = message.NewPrinter(language.Vietnamese)

// FormatAmount renders a number with vi-VN grouping: 500000 -> "500.000".
// Values that are not numbers are printed as-is.
func FormatAmount(v any) string {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return viPrinter.Sprint(number.Decimal(i))
		}
		if f, err := n.Float64(); err == nil {
			return viPrinter.Sprint(number.Decimal(f))
		}
		return n.String()
	case float64:
		if n == float64(int64(n)) {
			return viPrinter.Sprint(number.Decimal(int64(n)))
		}
		return viPrinter.Sprint(number.Decimal(n))
	case int:
		return viPrinter.Sprint(number.Decimal(n))
	case int64:
		return viPrinter.Sprint(number.Decimal(n))
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return viPrinter.Sprint(number.Decimal(i))
		}
		return n
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
