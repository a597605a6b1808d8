package detect

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hints maps each dominant pattern to the one-line framing shown to the
// user when the stop gate decides to prompt.
var hints = map[string]string{
	PatternErrorResolution:       "You worked through errors to a fix this session. The resolution path would help others hitting the same failure.",
	PatternSecurityHardening:     "This session hardened security-sensitive code after a failure. Security fixes are high-value traces.",
	PatternUserCorrection:        "The session direction changed after a correction. What the initial approach missed is worth capturing.",
	PatternApproachReversal:      "You replaced an approach wholesale after repeated attempts. Why the first approach failed is the valuable part.",
	PatternTestFixCycle:          "A failing test went through a fix cycle to green. The diagnosis is worth sharing.",
	PatternDependencyResolution:  "A dependency problem was worked through to resolution. Version and manifest fixes recur across projects.",
	PatternConfigDiscovery:       "Configuration changes resolved a failure. Config discoveries are rarely written down anywhere.",
	PatternInfraDiscovery:        "Infrastructure or CI changes resolved a failure. Deployment fixes tend to be relearned from scratch.",
	PatternMigration:             "This session swept a pattern change across many files. The migration recipe would transfer to similar codebases.",
	PatternResearchThenImplement: "External research preceded a working implementation. The synthesis from sources to working code is the trace.",
	PatternCrossFileBreadth:      "Work spanned many files across the tree, suggesting architectural understanding worth recording.",
	PatternWorkaround:            "The failure was resolved without touching the failing target. Workarounds are exactly what others search for.",
	PatternGenerationEffect:      "One file took many iterations to get right. The final shape and what ruled out the earlier ones make a good trace.",
}

const genericHint = "This session shows signs of hard-won knowledge worth contributing."

// Decide renders the stop-gate recommendation from the accumulated score.
// The threshold is inclusive: a session scoring exactly at it prompts.
// A zero-score session never prompts regardless of threshold.
func Decide(score *ScoreState, threshold float64) Recommendation {
	total := score.Total()
	rec := Recommendation{Score: total}
	if total == 0 || total < threshold {
		return rec
	}

	dominant := score.Dominant()
	meta := map[string]interface{}{"detection_pattern": dominant}
	for k, v := range score.Meta[dominant] {
		meta[k] = v
	}

	rec.ShouldPrompt = true
	rec.DominantPattern = dominant
	rec.Metadata = meta
	rec.Hint = hints[dominant]
	if rec.Hint == "" {
		rec.Hint = genericHint
	}
	rec.DedupKey = dedupKey(total, dominant, meta)
	return rec
}

// dedupKey derives a stable fingerprint for a recommendation so repeated
// stop evaluations of the same session state are recognizably identical.
// Map keys are sorted by the JSON encoder, keeping the digest stable.
func dedupKey(total float64, dominant string, meta map[string]interface{}) string {
	raw, _ := json.Marshal(meta)
	sum := md5.Sum([]byte(fmt.Sprintf("%d:%s:%s", int(total), dominant, raw)))
	return hex.EncodeToString(sum[:])
}
