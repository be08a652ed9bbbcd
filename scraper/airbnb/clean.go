package airbnb

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	defaultTitle       = "Imported Room"
	defaultDescription = "No description available"
)

var (
	// currencyAmountRegexp captures the first integer following a currency symbol
	currencyAmountRegexp = regexp.MustCompile(`[$€£¥₹]\s*([\d,]+)`)
	// guestCountRegexp captures "N guest"/"N guests"
	guestCountRegexp = regexp.MustCompile(`(?i)(\d+)\s*guest`)
	// dashSuffixRegexp splits an amenity title from trailing descriptive text
	dashSuffixRegexp = regexp.MustCompile(`\s+[-–—]\s+`)
)

// amenityStoplist rejects UI chrome captured by over-broad selectors.
var amenityStoplist = map[string]struct{}{
	"share":     {},
	"close":     {},
	"more":      {},
	"show more": {},
	"show all":  {},
	"save":      {},
	"report":    {},
	"translate": {},
	"back":      {},
	"next":      {},
	"previous":  {},
}

// pickTitle resolves the title fallback chain: h1 text, then the Open Graph
// title, then the literal default.
func pickTitle(h1, og string) string {
	if t := collapseWhitespace(h1); t != "" {
		return t
	}
	if t := collapseWhitespace(og); t != "" {
		return t
	}
	return defaultTitle
}

// buildDescription filters candidate text blocks down to prose paragraphs
// and joins them with blank lines. Blocks shorter than 20 characters,
// JSON-shaped blobs, bare URLs, and duplicates are dropped; at most
// maxParagraphs survive.
func buildDescription(blocks []string, maxParagraphs int) string {
	seen := make(map[string]struct{})
	var paragraphs []string

	for _, block := range blocks {
		text := strings.TrimSpace(block)
		if !looksLikeProse(text) {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		paragraphs = append(paragraphs, text)
		if len(paragraphs) >= maxParagraphs {
			break
		}
	}

	return strings.Join(paragraphs, "\n\n")
}

// looksLikeProse reports whether a text block reads like a description
// paragraph rather than markup debris.
func looksLikeProse(text string) bool {
	if len(text) <= 20 {
		return false
	}
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return false
	}
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return false
	}
	return true
}

// parseNightlyPrice extracts the first integer following a currency symbol
// from a "$123 night"-shaped text. Returns nil when nothing matches.
func parseNightlyPrice(text string) *float64 {
	match := currencyAmountRegexp.FindStringSubmatch(text)
	if len(match) < 2 {
		return nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseGuestCapacity extracts the guest count from a "4 guests"-shaped
// text. Returns nil when nothing matches.
func parseGuestCapacity(text string) *int {
	match := guestCountRegexp.FindStringSubmatch(text)
	if len(match) < 2 {
		return nil
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &n
}

// NormalizeAmenities applies the amenity cleaning rules to raw row titles:
// whitespace collapse, removal of rows prefixed "Unavailable:", trailing
// dash-description stripping, a stoplist of UI chrome words, a must-contain
// a-letter check, case-insensitive dedupe, and the max cap.
func NormalizeAmenities(raw []string, max int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(raw))

	for _, item := range raw {
		text := collapseWhitespace(item)
		if text == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(text), "unavailable:") {
			continue
		}
		if parts := dashSuffixRegexp.Split(text, 2); len(parts) > 1 {
			text = strings.TrimSpace(parts[0])
		}
		lower := strings.ToLower(text)
		if _, stopped := amenityStoplist[lower]; stopped {
			continue
		}
		if !containsLetter(text) {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, text)
		if len(out) >= max {
			break
		}
	}

	return out
}

// isListingImageURL reports whether a candidate URL plausibly belongs to
// the listing's photo CDN, excluding icons, logos, avatars, and
// placeholders.
func isListingImageURL(rawURL string) bool {
	u := strings.TrimSpace(rawURL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return false
	}

	lower := strings.ToLower(u)
	if !strings.Contains(lower, "muscache.com") && !strings.Contains(lower, "/im/pictures") &&
		!strings.Contains(lower, "/pictures/") {
		return false
	}

	for _, bad := range []string{"icon", "logo", "avatar", "profile", "placeholder", "sprite", ".svg", ".gif"} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	return true
}

// collapseWhitespace trims and collapses all internal whitespace runs to
// single spaces.
func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), unicode.IsSpace)
	return strings.Join(fields, " ")
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
