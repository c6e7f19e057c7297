package payload

import (
	"regexp"
	"strings"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

const defaultVariant = "00"

// variantSuffix matches an article code followed by a 1-2 digit variant, split by whitespace or a dot.
var variantSuffix = regexp.MustCompile(`^(.*\S)(?:\s+|\.)(\d{1,2})$`)

// NormalizeArticleReference splits "ABC 123   1" into base "ABC 123" and variant "01".
func NormalizeArticleReference(raw string) domain.ArticleReference {
	trimmed := strings.TrimSpace(raw)

	base, variant := trimmed, defaultVariant
	if match := variantSuffix.FindStringSubmatch(trimmed); match != nil {
		base = strings.TrimSpace(match[1])
		variant = match[2]
		if len(variant) == 1 {
			variant = "0" + variant
		}
	}

	return domain.ArticleReference{
		Base:       base,
		Variant:    variant,
		Normalized: base + "." + variant,
	}
}
