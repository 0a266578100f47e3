package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// LotFingerprint derives the canonical lot key from a free-form attributes
// map (batch, expiry, ...). Two logically identical attribute sets must
// resolve to the same stock row, so the encoding is deterministic: keys
// sorted lexicographically, values JSON-encoded. A nil or empty map
// fingerprints to "{}", the attribute-less default lot.
func LotFingerprint(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(attrs[k])
		b.Write(kj)
		b.WriteByte(':')
		b.Write(vj)
	}
	b.WriteByte('}')
	return b.String()
}
