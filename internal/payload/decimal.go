package payload

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

// ParseDecimal accepts "." or "," as decimal separator. When both appear, the last one is the
// decimal separator and the other groups thousands; a repeated single separator groups thousands.
func ParseDecimal(raw string) (float64, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if value == "" {
		return 0, fmt.Errorf("%w: empty decimal", domain.ErrValidation)
	}

	lastDot := strings.LastIndex(value, ".")
	lastComma := strings.LastIndex(value, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.Replace(value, ",", ".", 1)
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(value, ",") > 1 {
			value = strings.ReplaceAll(value, ",", "")
		} else {
			value = strings.Replace(value, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(value, ".") > 1 {
			value = strings.ReplaceAll(value, ".", "")
		}
	}

	if !isPlainDecimal(value) {
		return 0, fmt.Errorf("%w: %q is not a decimal", domain.ErrValidation, raw)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("%w: %q is not a decimal", domain.ErrValidation, raw)
	}
	return parsed, nil
}

// isPlainDecimal rejects what ParseFloat would otherwise accept: NaN, Inf, exponents and hex floats.
func isPlainDecimal(value string) bool {
	digits := strings.TrimLeft(value, "+-")
	if len(value)-len(digits) > 1 || digits == "" || digits == "." {
		return false
	}
	for _, r := range digits {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// decimalOrZero is ParseDecimal for optional fields.
func decimalOrZero(raw string) float64 {
	parsed, err := ParseDecimal(raw)
	if err != nil {
		return 0
	}
	return parsed
}
