package followup

import "github.com/sells-group/acquire-pipeline/internal/model"

// eligibleTotal is the minimum total score for follow-up generation. The
// tier bands already imply it, but the gate checks it on its own so a
// change to the band thresholds cannot silently widen eligibility.
const eligibleTotal = 70

// Eligible reports whether a scoring record passes the follow-up gate:
// tier A or B, and total score at least 70. Both conditions are checked
// explicitly.
func Eligible(rec *model.ScoringRecord) bool {
	if rec == nil {
		return false
	}
	if rec.Tier != model.TierA && rec.Tier != model.TierB {
		return false
	}
	return rec.Total >= eligibleTotal
}
