package pii

import "sort"

// Sanitizer masks detected PII in strings and nested structures.
// The zero value is not usable; construct with NewSanitizer.
type Sanitizer struct {
	detectors []detector
}

// NewSanitizer returns a sanitizer with the built-in detector set.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{detectors: detectors}
}

// SanitizeString masks every detected PII span in s and returns the
// masked string plus a count of detections per entity type.
func (s *Sanitizer) SanitizeString(in string) (string, map[Entity]int) {
	found := make(map[Entity]int)
	out := in
	for _, d := range s.detectors {
		out = d.re.ReplaceAllStringFunc(out, func(match string) string {
			if d.validate != nil && !d.validate(match) {
				return match
			}
			found[d.entity]++
			return d.entity.Mask()
		})
	}
	if len(found) == 0 {
		return in, nil
	}
	return out, found
}

// SanitizeValue recursively masks PII in strings, maps, and slices.
// Other value types pass through unchanged. The input is never mutated;
// branches containing detections are copied.
func (s *Sanitizer) SanitizeValue(v interface{}) (interface{}, map[Entity]int) {
	switch val := v.(type) {
	case string:
		return s.SanitizeString(val)

	case map[string]interface{}:
		var out map[string]interface{}
		found := make(map[Entity]int)
		for k, item := range val {
			masked, sub := s.SanitizeValue(item)
			if len(sub) == 0 {
				continue
			}
			if out == nil {
				out = make(map[string]interface{}, len(val))
				for ck, cv := range val {
					out[ck] = cv
				}
			}
			out[k] = masked
			mergeCounts(found, sub)
		}
		if out == nil {
			return val, nil
		}
		return out, found

	case []interface{}:
		var out []interface{}
		found := make(map[Entity]int)
		for i, item := range val {
			masked, sub := s.SanitizeValue(item)
			if len(sub) == 0 {
				continue
			}
			if out == nil {
				out = make([]interface{}, len(val))
				copy(out, val)
			}
			out[i] = masked
			mergeCounts(found, sub)
		}
		if out == nil {
			return val, nil
		}
		return out, found

	default:
		return v, nil
	}
}

// SanitizeMap masks PII in a string-keyed map. A nil result count map
// means nothing was detected and the input map is returned as-is.
func (s *Sanitizer) SanitizeMap(m map[string]interface{}) (map[string]interface{}, map[Entity]int) {
	if len(m) == 0 {
		return m, nil
	}
	masked, found := s.SanitizeValue(m)
	if len(found) == 0 {
		return m, nil
	}
	return masked.(map[string]interface{}), found
}

// Entities returns the detected entity names from a count map, sorted
// for stable reporting.
func Entities(found map[Entity]int) []string {
	if len(found) == 0 {
		return nil
	}
	names := make([]string, 0, len(found))
	for e := range found {
		names = append(names, string(e))
	}
	sort.Strings(names)
	return names
}

func mergeCounts(dst, src map[Entity]int) {
	for e, n := range src {
		dst[e] += n
	}
}
