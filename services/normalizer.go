package services

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"iphone-scraper/models"
	apperrors "iphone-scraper/pkg/errors"
	"iphone-scraper/utils"
)

var (
	// modelRegexp captures the generation after "iphone": one or two digits
	// ("13") or a two-letter code ("se", "xr"). The token must end at a
	// boundary so "iphone-pro" and "iphone-128gb" do not match.
	modelRegexp = regexp.MustCompile(`iphone[-_ ](?:(\d{1,2})(?:[^0-9]|$)|([a-z]{2})(?:[^a-z]|$))`)
	// capacityRegexp captures "256gb", "64 go" and similar capacity tokens
	capacityRegexp = regexp.MustCompile(`(\d+)\s*(?:gb|go)`)
	// currencyRegexp matches the currency markers stripped from price text
	currencyRegexp = regexp.MustCompile(`(?i)(?:huf|ft)\.?`)
)

// notAvailable is the placeholder the marketplace shows for missing spans.
const notAvailable = "N/A"

// Normalizer turns RawListings into typed NormalizedListings.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize parses one raw listing. It always returns a listing; the error
// joins every per-field problem (missing identifier, unusable price) so the
// caller can decide what to skip. Attribute inference uses only the URL slug.
func (n *Normalizer) Normalize(raw *models.RawListing) (*models.NormalizedListing, error) {
	if raw == nil {
		return &models.NormalizedListing{}, apperrors.NewMalformedURL("", nil)
	}

	listing := &models.NormalizedListing{
		Title:     normaliseText(raw.Title),
		SourceURL: raw.URL,
		Condition: optionalText(raw.Condition),
		Battery:   optionalText(raw.Battery),
	}

	var errs []error

	rawURL := strings.TrimSpace(raw.URL)
	if rawURL == "" {
		errs = append(errs, apperrors.NewMalformedURL(raw.URL, nil))
	} else if _, err := url.Parse(rawURL); err != nil {
		errs = append(errs, apperrors.NewMalformedURL(raw.URL, err))
	} else {
		if id, ok := ExtractIdentifier(rawURL); ok {
			listing.Identifier = &id
		} else {
			errs = append(errs, apperrors.NewMissingIdentifier(raw.URL))
		}

		slug := Slug(rawURL)
		listing.ModelFamily = ParseModelFamily(slug)
		listing.CapacityGB = ParseCapacity(slug)
		listing.IsPro, listing.IsMax, listing.IsMini, listing.IsSE = ParseVariantFlags(slug)
	}

	price, err := ParsePrice(raw.PriceText)
	if err != nil {
		errs = append(errs, err)
	} else {
		listing.PriceAmount = &price
	}

	if raw.Condition == nil {
		n.logger.Debug("[normalizer] No condition span for %s", raw.URL)
	}
	if raw.Battery == nil {
		n.logger.Debug("[normalizer] No battery span for %s", raw.URL)
	}

	return listing, errors.Join(errs...)
}

// ParseModelFamily returns "iPhone <TOKEN>" for the first model token in the
// slug, or nil when there is none.
func ParseModelFamily(slug string) *string {
	match := modelRegexp.FindStringSubmatch(slug)
	if match == nil {
		return nil
	}
	token := match[1]
	if token == "" {
		token = match[2]
	}
	family := "iPhone " + strings.ToUpper(token)
	return &family
}

// ParseVariantFlags reports whether the slug contains "pro", "max", "mini"
// and "se". Each test is independent of the others.
func ParseVariantFlags(slug string) (isPro, isMax, isMini, isSE bool) {
	return strings.Contains(slug, "pro"),
		strings.Contains(slug, "max"),
		strings.Contains(slug, "mini"),
		strings.Contains(slug, "se")
}

// ParseCapacity returns the storage size in GB from tokens such as "128gb"
// or "64 go", or nil when the slug has none.
func ParseCapacity(slug string) *int {
	match := capacityRegexp.FindStringSubmatch(strings.ToLower(slug))
	if len(match) < 2 {
		return nil
	}
	gb, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &gb
}

// ParsePrice converts marketplace price text such as "459 000 Ft" into an
// integer amount. Currency markers, whitespace and thousands separators are
// removed first.
func ParsePrice(text string) (int64, error) {
	cleaned := currencyRegexp.ReplaceAllString(text, "")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '.' || r == ',' {
			return -1
		}
		return r
	}, cleaned)

	if cleaned == "" {
		return 0, apperrors.NewPriceParse(text, fmt.Errorf("empty price"))
	}

	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, apperrors.NewPriceParse(text, err)
	}
	if amount < 0 {
		return 0, apperrors.NewPriceParse(text, fmt.Errorf("negative price %d", amount))
	}
	return amount, nil
}

// optionalText trims s and collapses blank or "N/A" values to nil.
func optionalText(s *string) *string {
	if s == nil {
		return nil
	}
	v := normaliseText(*s)
	if v == "" || strings.EqualFold(v, notAvailable) {
		return nil
	}
	return &v
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
