package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// Labeled numeric patterns emitted by the incubator firmware over BLE/WiFi,
// e.g. "TEMP Air: 26.3 C | Skin: 34.2 C | RH: 52 | Weight: 3.2".
var (
	reAir    = regexp.MustCompile(`(?i)(?:temp\s*)?air\s*[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reSkin   = regexp.MustCompile(`(?i)skin\s*[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reRH     = regexp.MustCompile(`(?i)rh\s*[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reUHum   = regexp.MustCompile(`(?i)uhum\s*[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reWeight = regexp.MustCompile(`(?i)weight\s*[:\s]+([0-9]+(?:\.[0-9]+)?)`)
)

// ParseText extracts canonical measurement fields from a freeform firmware
// line. Lines may be separated by newlines or combined with "|". A label
// with no parsable number contributes no field. Weight is reported in
// kilograms and converted to grams here. No timestamp is extracted; the
// caller supplies ingestion time.
func ParseText(text string) map[string]any {
	s := strings.ReplaceAll(text, "\n", " | ")
	out := make(map[string]any)

	if v, ok := matchFloat(reAir, s); ok {
		out["temp_aire_c"] = v
	}
	if v, ok := matchFloat(reSkin, s); ok {
		out["temp_piel_c"] = v
	}
	if v, ok := matchFloat(reRH, s); ok {
		out["humedad"] = v
	} else if v, ok := matchFloat(reUHum, s); ok {
		// uHum is a fallback only when RH is absent
		out["humedad"] = v
	}
	if v, ok := matchFloat(reWeight, s); ok {
		out["peso_g"] = v * 1000
	}
	return out
}

func matchFloat(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
