package detect

import (
	"fmt"
	"math"
	"strings"
)

// Detection pattern names. Each names the knowledge shape a session
// exhibited, inferred purely from signal order and path classes.
const (
	PatternErrorResolution       = "error_resolution"
	PatternSecurityHardening     = "security_hardening"
	PatternUserCorrection        = "user_correction"
	PatternApproachReversal      = "approach_reversal"
	PatternTestFixCycle          = "test_fix_cycle"
	PatternDependencyResolution  = "dependency_resolution"
	PatternConfigDiscovery       = "config_discovery"
	PatternInfraDiscovery        = "infra_discovery"
	PatternMigration             = "migration_pattern"
	PatternResearchThenImplement = "research_then_implement"
	PatternCrossFileBreadth      = "cross_file_breadth"
	PatternWorkaround            = "workaround"
	PatternGenerationEffect      = "generation_effect"
)

// defaultWeights are the built-in per-pattern score contributions,
// overridable via detection.weights in config.
var defaultWeights = map[string]float64{
	PatternErrorResolution:       3.0,
	PatternSecurityHardening:     2.5,
	PatternUserCorrection:        2.0,
	PatternApproachReversal:      2.5,
	PatternTestFixCycle:          2.5,
	PatternDependencyResolution:  2.0,
	PatternConfigDiscovery:       2.0,
	PatternInfraDiscovery:        2.0,
	PatternMigration:             2.0,
	PatternResearchThenImplement: 2.0,
	PatternCrossFileBreadth:      1.5,
	PatternWorkaround:            1.5,
	PatternGenerationEffect:      1.5,
}

// rule maps one signal to zero or more pattern candidates. Rules are data:
// adding a pattern means appending here, not threading new logic through
// the engine. Each match must be O(1) in the signal log length.
type rule struct {
	pattern string
	match   func(e *Engine, sig Signal) []Candidate
}

func defaultRules() []rule {
	return []rule{
		{PatternErrorResolution, matchErrorResolution},
		{PatternSecurityHardening, matchEpisodeClass((*PathClass).IsSecurity)},
		{PatternDependencyResolution, matchEpisodeClass((*PathClass).IsManifest)},
		{PatternConfigDiscovery, matchEpisodeClass((*PathClass).IsConfig)},
		{PatternInfraDiscovery, matchEpisodeClass((*PathClass).IsInfra)},
		{PatternWorkaround, matchWorkaround},
		{PatternUserCorrection, matchUserCorrection},
		{PatternApproachReversal, matchApproachReversal},
		{PatternTestFixCycle, matchTestFixCycle},
		{PatternResearchThenImplement, matchResearch},
		{PatternCrossFileBreadth, matchBreadth},
		{PatternGenerationEffect, matchGenerationEffect},
		{PatternMigration, matchMigration},
	}
}

// closedEpisode returns the episode a command_succeeded signal closed,
// if it closed one that saw edits.
func closedEpisode(e *Engine, sig Signal) *Episode {
	if sig.Kind != SignalCommandSucceeded || sig.Episode == 0 {
		return nil
	}
	ep := e.state.Episode(sig.Episode)
	if ep == nil || len(ep.Edits) == 0 {
		return nil
	}
	return ep
}

func episodeKey(ep *Episode) string {
	return fmt.Sprintf("episode-%d", ep.ID)
}

func matchErrorResolution(e *Engine, sig Signal) []Candidate {
	ep := closedEpisode(e, sig)
	if ep == nil {
		return nil
	}
	return []Candidate{{
		EpisodeKey: episodeKey(ep),
		Meta: map[string]interface{}{
			"error_count":                ep.Failures,
			"iteration_count":            len(ep.Edits),
			"time_to_resolution_minutes": roundMinutes(ep.Duration().Minutes()),
		},
	}}
}

// matchEpisodeClass fires when a failure episode was resolved by editing
// at least one file of the given path class.
func matchEpisodeClass(classify func(*PathClass, string) bool) func(*Engine, Signal) []Candidate {
	return func(e *Engine, sig Signal) []Candidate {
		ep := closedEpisode(e, sig)
		if ep == nil {
			return nil
		}
		for _, p := range ep.Edits {
			if classify(e.paths, p) {
				return []Candidate{{
					EpisodeKey: episodeKey(ep),
					Meta:       map[string]interface{}{"error_count": ep.Failures},
				}}
			}
		}
		return nil
	}
}

func matchWorkaround(e *Engine, sig Signal) []Candidate {
	ep := closedEpisode(e, sig)
	if ep == nil || ep.FailedPath == "" || ep.TouchedFailedPath() {
		return nil
	}
	return []Candidate{{
		EpisodeKey: episodeKey(ep),
		Meta:       map[string]interface{}{"error_count": ep.Failures},
	}}
}

func matchUserCorrection(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalUserCorrection {
		return nil
	}
	return []Candidate{{EpisodeKey: fmt.Sprintf("correction-%d", sig.Seq)}}
}

func matchApproachReversal(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalWholesaleRewrite {
		return nil
	}
	if sig.Count <= e.cfg.RepeatEditThreshold {
		return nil
	}
	return []Candidate{{
		EpisodeKey: fmt.Sprintf("reversal-%s-%d", sig.Path, e.state.BurstIndex[sig.Path]),
		Meta:       map[string]interface{}{"iteration_count": sig.Count},
	}}
}

func matchTestFixCycle(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalTestRun || !sig.Passed {
		return nil
	}
	st := e.state
	if st.LastTestFailSeq == 0 || len(st.EditsSinceTestFail) == 0 {
		return nil
	}
	return []Candidate{{
		EpisodeKey: fmt.Sprintf("testcycle-%d", st.LastTestFailSeq),
		Meta:       map[string]interface{}{"iteration_count": len(st.EditsSinceTestFail)},
	}}
}

func matchResearch(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalCommandSucceeded {
		return nil
	}
	st := e.state
	if len(st.ResearchSeqs) == 0 || st.EditsAfterResearch == 0 {
		return nil
	}
	return []Candidate{{
		EpisodeKey: fmt.Sprintf("research-%d", st.ResearchSeqs[0]),
		Meta:       map[string]interface{}{"lookup_count": len(st.ResearchSeqs)},
	}}
}

func matchBreadth(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalManyFilesTouched {
		return nil
	}
	// Weight scales with directory spread: a sweep across many
	// directories signals architectural knowledge, not a local refactor.
	w := e.weight(PatternCrossFileBreadth)
	if min := e.cfg.BreadthMinDirs; min > 0 {
		scale := float64(sig.Dirs) / float64(min)
		w = math.Min(w*scale, w*2)
	}
	return []Candidate{{
		EpisodeKey: "breadth",
		Weight:     w,
		Meta: map[string]interface{}{
			"file_count": sig.Count,
			"dir_count":  sig.Dirs,
		},
	}}
}

func matchGenerationEffect(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalFileEditedRepeatedly {
		return nil
	}
	if t := e.cfg.GenerationEditThreshold; t == 0 || sig.Count < t {
		return nil
	}
	return []Candidate{{
		EpisodeKey: fmt.Sprintf("generation-%s-%d", sig.Path, e.state.BurstIndex[sig.Path]),
		Meta:       map[string]interface{}{"iteration_count": sig.Count},
	}}
}

func matchMigration(e *Engine, sig Signal) []Candidate {
	if sig.Kind != SignalCommandSucceeded {
		return nil
	}
	min := e.cfg.MigrationMinFiles
	if min <= 0 {
		return nil
	}
	var out []Candidate
	for ext, files := range e.state.ExtFiles {
		if len(files) < min {
			continue
		}
		out = append(out, Candidate{
			EpisodeKey: "migration-" + strings.TrimPrefix(ext, "."),
			Meta: map[string]interface{}{
				"file_count": len(files),
				"language":   e.paths.Language("x" + ext),
			},
		})
	}
	return out
}

func roundMinutes(m float64) float64 {
	return math.Round(m*10) / 10
}
