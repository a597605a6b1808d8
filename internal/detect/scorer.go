package detect

// ScoreState accumulates pattern contributions for one session. Each
// (pattern, episode key) pair contributes exactly once, so replayed
// events and repeat detections of the same arc never inflate the score.
// Contributions are additive across patterns and across distinct arcs.
type ScoreState struct {
	Buckets map[string]float64                `json:"buckets"`
	Seen    map[string]bool                   `json:"seen"`
	Meta    map[string]map[string]interface{} `json:"meta,omitempty"`
	Order   []string                          `json:"order,omitempty"`
}

// NewScoreState returns an empty score accumulator.
func NewScoreState() *ScoreState {
	s := &ScoreState{}
	s.init()
	return s
}

func (s *ScoreState) init() {
	if s.Buckets == nil {
		s.Buckets = make(map[string]float64)
	}
	if s.Seen == nil {
		s.Seen = make(map[string]bool)
	}
	if s.Meta == nil {
		s.Meta = make(map[string]map[string]interface{})
	}
}

// Add applies one candidate. It reports whether the candidate was new;
// a previously seen (pattern, key) pair is dropped.
func (s *ScoreState) Add(c Candidate) bool {
	key := c.Pattern + "|" + c.EpisodeKey
	if s.Seen[key] {
		return false
	}
	s.Seen[key] = true
	s.Buckets[c.Pattern] += c.Weight
	if c.Meta != nil {
		s.Meta[c.Pattern] = c.Meta
	}
	for _, p := range s.Order {
		if p == c.Pattern {
			return true
		}
	}
	s.Order = append(s.Order, c.Pattern)
	return true
}

// Total returns the session score.
func (s *ScoreState) Total() float64 {
	var t float64
	for _, w := range s.Buckets {
		t += w
	}
	return t
}

// Breakdown returns a copy of the per-pattern contributions.
func (s *ScoreState) Breakdown() map[string]float64 {
	out := make(map[string]float64, len(s.Buckets))
	for p, w := range s.Buckets {
		out[p] = w
	}
	return out
}

// Dominant returns the pattern with the highest contribution. Ties break
// toward the pattern detected first, keeping the result deterministic.
func (s *ScoreState) Dominant() string {
	var best string
	var bestW float64
	for _, p := range s.Order {
		if w := s.Buckets[p]; w > bestW {
			best, bestW = p, w
		}
	}
	return best
}
