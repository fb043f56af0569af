// Package canon computes the content hashes that drive record versioning
// and deduplication. Hashes are stable across runs: the listing hash covers
// the normalized raw input plus the extraction prompt version (never the
// extraction output, which is non-deterministic), and the research hash
// covers the agent output plus its identity tuple.
package canon

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Normalize standardizes raw listing text for hashing: Unicode NFKC fold,
// lowercase, and whitespace collapsed to single spaces. Two scrapes of the
// same listing that differ only in spacing or encoding hash identically.
func Normalize(raw string) string {
	s := norm.NFKC.String(raw)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// ListingHash returns the content hash for a canonical-record write:
// SHA-256 over the normalized raw text and the extraction prompt version.
func ListingHash(rawText, promptVersion string) string {
	h := sha256.Sum256([]byte(Normalize(rawText) + "|" + promptVersion))
	return fmt.Sprintf("%x", h)
}

// maxSectorKeyLen bounds sector keys so they stay usable as index values.
const maxSectorKeyLen = 100

// SectorKey normalizes a free-form sector name into the stable key research
// records are versioned under: NFKC fold, lowercase, every run of
// non-alphanumeric characters collapsed to one underscore, outer
// underscores trimmed, truncated to 100 characters. "Dental SaaS" and
// "dental-saas" key the same research.
func SectorKey(sectorName string) string {
	s := strings.ToLower(norm.NFKC.String(sectorName))
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	key := b.String()
	if len(key) > maxSectorKeyLen {
		key = key[:maxSectorKeyLen]
		key = strings.TrimRight(key, "_")
	}
	return key
}

// ResearchHash returns the content hash for a sector-research write:
// SHA-256 over the (sector key, agent type, prompt version) identity tuple
// and the JSON-encoded agent output.
func ResearchHash(sectorKey string, agentType model.AgentType, promptVersion string, output any) (string, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256([]byte(sectorKey + "|" + string(agentType) + "|" + promptVersion + "|" + string(data)))
	return fmt.Sprintf("%x", h), nil
}
