package adjust

import (
	"math"
	"slices"
	"time"

	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// topicWindow is the last HistoryWindow records covering one topic.
type topicWindow struct {
	topic   string
	records []profile.AssessmentRecord
}

// windows groups history by topic tag, keeping the most recent window
// records per topic. history must be sorted oldest first.
func windows(history []profile.AssessmentRecord, window int) []topicWindow {
	byTopic := make(map[string][]profile.AssessmentRecord)
	for _, a := range history {
		for _, t := range a.Topics {
			byTopic[t] = append(byTopic[t], a)
		}
	}
	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	slices.Sort(topics)

	out := make([]topicWindow, 0, len(topics))
	for _, t := range topics {
		recs := byTopic[t]
		if len(recs) > window {
			recs = recs[len(recs)-window:]
		}
		out = append(out, topicWindow{topic: t, records: recs})
	}
	return out
}

func meanVariance(recs []profile.AssessmentRecord) (mean, variance float64) {
	if len(recs) == 0 {
		return 0, 0
	}
	for _, r := range recs {
		mean += r.Score
	}
	mean /= float64(len(recs))
	for _, r := range recs {
		d := r.Score - mean
		variance += d * d
	}
	variance /= float64(len(recs))
	return mean, variance
}

// Confidence scales with the number of data points (saturating at
// FullConfidencePoints) and the distance past the threshold relative to
// the gap between the struggle and strength thresholds.
func Confidence(points int, distance float64, cfg config.Engine) float64 {
	span := cfg.StrengthThreshold - cfg.StruggleThreshold
	if points <= 0 || span <= 0 || distance <= 0 {
		return 0
	}
	c := math.Min(1, float64(points)/float64(cfg.FullConfidencePoints)) * math.Min(1, distance/span)
	return math.Round(c*1000) / 1000
}

// DetectPatterns classifies every topic in the history as a struggle or
// strength area from its rolling average. A topic that qualifies as a
// struggle is never also reported as a strength. The result is sorted by
// topic and carries no ids.
func DetectPatterns(studentID string, history []profile.AssessmentRecord, cfg config.Engine, at time.Time) []roadmap.Pattern {
	var out []roadmap.Pattern
	for _, w := range windows(history, cfg.HistoryWindow) {
		n := len(w.records)
		if n < cfg.MinDataPoints {
			continue
		}
		avg, variance := meanVariance(w.records)

		var (
			kind     roadmap.PatternType
			distance float64
		)
		switch {
		case avg < cfg.StruggleThreshold:
			kind, distance = roadmap.PatternStruggle, cfg.StruggleThreshold-avg
		case avg > cfg.StrengthThreshold:
			kind, distance = roadmap.PatternStrength, avg-cfg.StrengthThreshold
		default:
			continue
		}

		out = append(out, roadmap.Pattern{
			StudentID: studentID,
			Type:      kind,
			Data: roadmap.PatternData{
				Topic:        w.topic,
				Confidence:   Confidence(n, distance, cfg),
				RollingAvg:   math.Round(avg*100) / 100,
				Variance:     math.Round(variance*100) / 100,
				DataPoints:   n,
				SourceRecord: w.records[n-1].ID,
			},
			DetectedAt: at,
		})
	}
	return out
}

// PatternPlan is the set of writes that makes the stored patterns match a
// detection run.
type PatternPlan struct {
	Supersede []string
	Insert    []roadmap.Pattern
}

// Empty reports whether the plan writes nothing.
func (p PatternPlan) Empty() bool {
	return len(p.Supersede) == 0 && len(p.Insert) == 0
}

// PlanPatterns compares detected patterns against the active ones. A
// detected pattern identical in evidence to the active record in its slot
// is skipped; otherwise the active record is superseded and the new one
// inserted. Detecting a struggle also supersedes an active strength on the
// same topic, and the other way round. Topics not detected this run are
// left alone.
func PlanPatterns(active, detected []roadmap.Pattern) PatternPlan {
	bySlot := make(map[string]roadmap.Pattern, len(active))
	for _, p := range active {
		if p.Active() {
			bySlot[p.Key()] = p
		}
	}

	var plan PatternPlan
	superseded := make(map[string]bool)
	supersede := func(id string) {
		if !superseded[id] {
			superseded[id] = true
			plan.Supersede = append(plan.Supersede, id)
		}
	}

	for _, d := range detected {
		if old, ok := bySlot[d.Key()]; ok {
			if sameEvidence(old.Data, d.Data) {
				continue
			}
			supersede(old.ID)
		}
		if opp, ok := opposite(d.Type); ok {
			o := d
			o.Type = opp
			if old, ok := bySlot[o.Key()]; ok {
				supersede(old.ID)
			}
		}
		plan.Insert = append(plan.Insert, d)
	}
	slices.Sort(plan.Supersede)
	return plan
}

func opposite(t roadmap.PatternType) (roadmap.PatternType, bool) {
	switch t {
	case roadmap.PatternStruggle:
		return roadmap.PatternStrength, true
	case roadmap.PatternStrength:
		return roadmap.PatternStruggle, true
	}
	return "", false
}

func sameEvidence(a, b roadmap.PatternData) bool {
	return a.Topic == b.Topic &&
		a.Confidence == b.Confidence &&
		a.RollingAvg == b.RollingAvg &&
		a.DataPoints == b.DataPoints &&
		a.SourceRecord == b.SourceRecord
}

// ExtractGaps returns the wrong-answer topics of the trigger and of the
// last window records sharing a topic with it. When none were recorded
// the trigger's own topics are the gaps.
func ExtractGaps(trigger profile.AssessmentRecord, history []profile.AssessmentRecord, window int) []string {
	cluster := make(map[string]bool, len(trigger.Topics))
	for _, t := range trigger.Topics {
		cluster[t] = true
	}

	var related []profile.AssessmentRecord
	for _, a := range history {
		if a.ID != trigger.ID && sharesTopic(a, cluster) {
			related = append(related, a)
		}
	}
	if len(related) > window {
		related = related[len(related)-window:]
	}

	var gaps []string
	gaps = append(gaps, trigger.WrongTopics...)
	for _, a := range related {
		gaps = append(gaps, a.WrongTopics...)
	}
	if len(gaps) == 0 {
		gaps = append(gaps, trigger.Topics...)
	}
	slices.Sort(gaps)
	return slices.Compact(gaps)
}

// ConsecutiveFailures counts the most recent unbroken run of failed
// assessments sharing a topic with the trigger, the trigger included.
func ConsecutiveFailures(trigger profile.AssessmentRecord, history []profile.AssessmentRecord) int {
	cluster := make(map[string]bool, len(trigger.Topics))
	for _, t := range trigger.Topics {
		cluster[t] = true
	}
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		a := history[i]
		if !sharesTopic(a, cluster) {
			continue
		}
		if a.Passed {
			break
		}
		n++
	}
	return n
}

func sharesTopic(a profile.AssessmentRecord, topics map[string]bool) bool {
	for _, t := range a.Topics {
		if topics[t] {
			return true
		}
	}
	return false
}
