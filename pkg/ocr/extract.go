package ocr

import (
	"regexp"
)

// folioPatterns is evaluated in priority order, first match wins. Labelled
// contexts beat bare digit runs, longer runs beat shorter ones.
var folioPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bN[°º]?o?\s*[.:#-]?\s*(\d{5,})`), // N 12345 / N° 12345 / No. 12345
	regexp.MustCompile(`(?i)BOLETA[^0-9]{0,20}(\d{5,})`),
	regexp.MustCompile(`(?i)FOLIO[^0-9]{0,20}(\d{5,})`),
	regexp.MustCompile(`(?i)\bNUM(?:ERO)?[^0-9]{0,20}(\d{5,})`),
	regexp.MustCompile(`(?i)n[\s.:#-]*(\d{5,})`), // loose single-letter prefix
	regexp.MustCompile(`(\d{7,})`),
	regexp.MustCompile(`\b(\d{6})\b`),
	regexp.MustCompile(`\b(\d{5})\b`),
	regexp.MustCompile(`(\d{4,})`), // last resort
}

var digitRunRE = regexp.MustCompile(`\d+`)

// ExtractFolio pulls a candidate folio number out of concatenated OCR text.
// Best effort by design: OCR noise means there is no correctness guarantee,
// only the pattern priority above plus a longest-digit-run fallback.
func ExtractFolio(text string) (string, bool) {
	text = normalizeText(text)
	for _, re := range folioPatterns {
		if m := re.FindStringSubmatch(text); len(m) >= 2 {
			return m[1], true
		}
	}
	// Fallback: longest digit run, first occurrence wins ties.
	longest := ""
	for _, run := range digitRunRE.FindAllString(text, -1) {
		if len(run) > len(longest) {
			longest = run
		}
	}
	if len(longest) >= 4 {
		return longest, true
	}
	return "", false
}
