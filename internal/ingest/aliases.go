package ingest

// aliasPrecedence lists, per canonical field, every accepted source key in
// precedence order. When a payload carries several synonyms for the same
// field the most canonical spelling wins, regardless of map iteration order.
// Unqualified temperature spellings ("temperatura", "temp") map to air
// temperature, never skin; that matches the sensor placement convention of
// the device fleet.
var aliasPrecedence = map[string][]string{
	"device_id":   {"device_id", "id", "mac", "device"},
	"ts":          {"ts", "timestamp", "time"},
	"temp_aire_c": {"temp_aire_c", "temp_aire", "temperatura", "temp", "tAir"},
	"temp_piel_c": {"temp_piel_c", "temp_piel", "tSkin"},
	"humedad":     {"humedad", "humedad_rel", "rh", "uHum"},
	"luz":         {"luz", "lux", "als"},
	"peso_g":      {"peso_g", "peso", "kg"},
	"set_control": {"set_control", "set", "setControl"},
	"ntc_raw":     {"ntc_raw"},
	"ntc_c":       {"ntc_c"},
	"alerts":      {"alerts"},
}

// knownAliases is every key claimed by some canonical field. Recognized
// synonyms never leak through as passthrough keys, even when they lose the
// precedence race.
var knownAliases = func() map[string]bool {
	known := make(map[string]bool)
	for _, candidates := range aliasPrecedence {
		for _, key := range candidates {
			known[key] = true
		}
	}
	return known
}()

// Resolved is the canonical view of a raw payload. Sources records which
// original key supplied each canonical field so the normalizer can apply
// alias-specific unit conversion (a value that arrived under "kg" is still
// kilograms at this stage).
type Resolved struct {
	Fields  map[string]any
	Sources map[string]string
}

// ResolveAliases rewrites arbitrary incoming field names to canonical ones.
// Keys that are neither canonical nor a recognized alias pass through
// unchanged. Resolving an already-canonical payload is the identity.
func ResolveAliases(raw map[string]any) Resolved {
	out := Resolved{
		Fields:  make(map[string]any, len(raw)),
		Sources: make(map[string]string, len(raw)),
	}
	for canonical, candidates := range aliasPrecedence {
		for _, key := range candidates {
			if v, ok := raw[key]; ok {
				out.Fields[canonical] = v
				out.Sources[canonical] = key
				break
			}
		}
	}
	for key, v := range raw {
		if knownAliases[key] {
			continue
		}
		out.Fields[key] = v
		out.Sources[key] = key
	}
	return out
}
