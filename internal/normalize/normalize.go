// Package normalize turns untrusted provider payloads into roadmaps that
// satisfy every structural invariant, or rejects them.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/aigen"
	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/llm"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// Validated is provider output that passed validation, possibly after
// repairs.
type Validated struct {
	Roadmap  *roadmap.Roadmap
	Repairs  []roadmap.Repair
	Warnings []string
	// TouchedItems counts distinct items that were dropped, inserted or
	// changed. Items is the denominator used for the repair ratio.
	TouchedItems int
	Items        int
}

// RejectedPayload is provider output that could not be trusted. Err wraps
// roadmap.ErrSchemaViolation, roadmap.ErrLowConfidenceOutput or
// roadmap.ErrInvalidRoadmap.
type RejectedPayload struct {
	Payload json.RawMessage
	Repairs []roadmap.Repair
	Err     error
}

func (r *RejectedPayload) Error() string {
	return "rejected provider payload: " + r.Err.Error()
}

func (r *RejectedPayload) Unwrap() error {
	return r.Err
}

// Validator checks and repairs provider payloads against a catalog graph.
// It holds no per-request state and is safe for concurrent use.
type Validator struct {
	cfg config.Engine
	log *zap.Logger
}

func New(cfg config.Engine, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{cfg: cfg, log: log}
}

var roadmapRequired = []string{"learning_path", "difficulty_progression", "personalization_reasoning"}

// Validate normalizes a roadmap payload for the student. On success the
// roadmap has dense positions, satisfied prerequisites and a correct
// total; ID, version and timestamps are left for the caller.
func (v *Validator) Validate(raw *aigen.RawPayload, g *catalog.Graph, sc profile.StudentContext) (*Validated, error) {
	s := newSession(v.cfg, g, sc)
	reject := func(err error) error {
		return &RejectedPayload{Payload: raw.Body, Repairs: s.repairs, Err: err}
	}

	if err := checkEnvelope(raw.Body, roadmapEnvelope, roadmapRequired); err != nil {
		return nil, reject(err)
	}
	var doc rawRoadmap
	if err := json.Unmarshal(raw.Body, &doc); err != nil {
		return nil, reject(&roadmap.SchemaViolationError{Field: "$", Reason: err.Error()})
	}

	items := make([]workItem, 0, len(doc.LearningPath))
	seen := make(map[string]bool, len(doc.LearningPath))
	for i, ri := range doc.LearningPath {
		it, ok := s.normalizeItem(i, ri)
		if !ok {
			continue
		}
		switch {
		case seen[it.Ref]:
			s.drop(i, it.Ref, "duplicate reference")
			continue
		case s.completed[it.Ref]:
			s.drop(i, it.Ref, "already completed")
			continue
		case g.Blocked(it.Ref, s.completed):
			s.drop(i, it.Ref, "prerequisite missing from catalog")
			continue
		}
		seen[it.Ref] = true
		items = append(items, workItem{id: i, item: it})
	}
	s.nextID = len(doc.LearningPath)

	items = s.insertPrerequisites(items)
	items = s.enforceOrder(items)

	if len(items) == 0 {
		return nil, reject(&roadmap.SchemaViolationError{Field: "learning_path", Reason: "no usable items"})
	}

	r := &roadmap.Roadmap{
		StudentID:        sc.StudentID,
		FormatVersion:    roadmap.FormatVersion,
		Items:            make([]roadmap.Item, len(items)),
		Reasoning:        strings.TrimSpace(doc.Reasoning),
		AlternativePaths: nonBlank(doc.AlternativePaths),
		SuccessMetrics:   nonBlank(doc.SuccessMetrics),
		Factors: roadmap.Factors{
			KnowledgeGaps:     slices.Clone(sc.KnowledgeGaps),
			PreferenceSummary: sc.PreferenceSummary(),
			TimeConstraint:    sc.TimeConstraintSummary(),
		},
	}
	for i, w := range items {
		r.Items[i] = w.item
	}
	r.Renumber()
	r.Progression = s.progression(doc.Progression, r.Items)

	if len(r.SuccessMetrics) == 0 {
		r.SuccessMetrics = roadmap.DefaultSuccessMetrics(r.Items, sc.KnowledgeGaps)
		s.repair(-1, "success_metrics", "success_metrics", "derived from path")
	}

	n := len(doc.LearningPath) + s.inserted
	touched := len(s.touched)
	if touched >= v.cfg.MinRepairsForLowConfidence && float64(touched) > v.cfg.RepairRatioLimit*float64(n) {
		v.log.Info("rejecting low confidence payload",
			zap.String("student_id", sc.StudentID),
			zap.Int("touched", touched),
			zap.Int("items", n))
		return nil, reject(fmt.Errorf("%w: %d of %d items repaired", roadmap.ErrLowConfidenceOutput, touched, n))
	}

	r.Strategy = roadmap.StrategyAI
	if len(s.repairs) > 0 {
		r.Strategy = roadmap.StrategyHybrid
	}
	r.Repairs = s.repairs

	if err := roadmap.Check(r, g, s.completed); err != nil {
		return nil, reject(err)
	}

	for _, w := range s.warnings {
		v.log.Debug("normalize warning", zap.String("student_id", sc.StudentID), zap.String("warning", w))
	}
	return &Validated{
		Roadmap:      r,
		Repairs:      s.repairs,
		Warnings:     s.warnings,
		TouchedItems: touched,
		Items:        n,
	}, nil
}

// ValidateRemedial normalizes a remedial payload. Every kept item becomes
// remedial. Items already in existing, completed, or whose catalog
// prerequisites are not all completed are dropped, and the result is
// capped at maxItems.
func (v *Validator) ValidateRemedial(raw *aigen.RawPayload, g *catalog.Graph, sc profile.StudentContext, existing []roadmap.Item, maxItems int) ([]roadmap.Item, []roadmap.Repair, error) {
	s := newSession(v.cfg, g, sc)
	reject := func(err error) error {
		return &RejectedPayload{Payload: raw.Body, Repairs: s.repairs, Err: err}
	}

	if err := checkEnvelope(raw.Body, remedialEnvelope, []string{"items"}); err != nil {
		return nil, nil, reject(err)
	}
	var doc struct {
		Items []rawItem `json:"items"`
	}
	if err := json.Unmarshal(raw.Body, &doc); err != nil {
		return nil, nil, reject(&roadmap.SchemaViolationError{Field: "$", Reason: err.Error()})
	}

	seen := make(map[string]bool, len(existing))
	for _, it := range existing {
		seen[it.Ref] = true
	}

	var out []roadmap.Item
	for i, ri := range doc.Items {
		ref := strings.TrimSpace(ri.Reference)
		if _, ok := g.Resolve(ref); ref != "" && !ok && !strings.HasPrefix(ref, "review:") {
			s.drop(i, ref, "unresolvable reference")
			continue
		}
		ri.Kind = string(roadmap.KindRemedial)
		it, ok := s.normalizeItem(i, ri)
		if !ok {
			continue
		}
		switch {
		case seen[it.Ref]:
			s.drop(i, it.Ref, "already in roadmap")
			continue
		case s.completed[it.Ref]:
			s.drop(i, it.Ref, "already completed")
			continue
		case len(g.PendingAncestors(it.Ref, s.completed)) > 0 || g.Blocked(it.Ref, s.completed):
			s.drop(i, it.Ref, "prerequisites not completed")
			continue
		}
		if len(out) == maxItems {
			s.warn(fmt.Sprintf("remedial cap %d reached, dropping %q", maxItems, it.Ref))
			break
		}
		seen[it.Ref] = true
		out = append(out, it)
	}

	if len(out) == 0 {
		return nil, nil, reject(&roadmap.SchemaViolationError{Field: "items", Reason: "no usable remedial items"})
	}
	return out, s.repairs, nil
}

type rawItem struct {
	// Position is ignored: array order wins.
	Position         *int     `json:"position"`
	Reference        string   `json:"reference"`
	Kind             string   `json:"kind"`
	EstimatedMinutes float64  `json:"estimated_minutes"`
	Difficulty       string   `json:"difficulty"`
	Rationale        string   `json:"rationale"`
	Topics           []string `json:"topics"`
}

type rawProgression struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type rawRoadmap struct {
	LearningPath     []rawItem      `json:"learning_path"`
	Progression      rawProgression `json:"difficulty_progression"`
	Reasoning        string         `json:"personalization_reasoning"`
	AlternativePaths []string       `json:"alternative_paths"`
	SuccessMetrics   []string       `json:"success_metrics"`
}

// Envelopes check JSON types only; presence and content rules are applied
// by hand so they can be repaired.
var itemEnvelope = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"position":          map[string]any{"type": []any{"integer", "null"}},
		"reference":         map[string]any{"type": "string"},
		"kind":              map[string]any{"type": "string"},
		"estimated_minutes": map[string]any{"type": "number"},
		"difficulty":        map[string]any{"type": "string"},
		"rationale":         map[string]any{"type": "string"},
		"topics":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var roadmapEnvelope = &llm.Schema{
	Name: "roadmap-envelope",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"learning_path": map[string]any{"type": "array", "items": itemEnvelope},
			"difficulty_progression": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start": map[string]any{"type": "string"},
					"end":   map[string]any{"type": "string"},
				},
			},
			"personalization_reasoning": map[string]any{"type": "string"},
			"alternative_paths":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"success_metrics":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	},
}

var remedialEnvelope = &llm.Schema{
	Name: "remedial-envelope",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"type": "array", "items": itemEnvelope},
		},
	},
}

// checkEnvelope verifies the root is an object carrying every required
// field, then checks value types. The first offending field is reported.
func checkEnvelope(body json.RawMessage, envelope *llm.Schema, required []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return &roadmap.SchemaViolationError{Field: "$", Reason: "payload is not a JSON object"}
	}
	for _, f := range required {
		v, ok := fields[f]
		if !ok || string(v) == "null" {
			return &roadmap.SchemaViolationError{Field: f, Reason: "required field missing"}
		}
	}

	compiled, err := llm.CompileSchema(envelope)
	if err != nil {
		return fmt.Errorf("compile %s: %w", envelope.Name, err)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(body)))
	if err != nil {
		return &roadmap.SchemaViolationError{Field: "$", Reason: err.Error()}
	}
	if err := compiled.Validate(inst); err != nil {
		field, loc := violationLocation(err)
		return &roadmap.SchemaViolationError{Field: field, Reason: "wrong type at /" + loc}
	}
	return nil
}

func violationLocation(err error) (field, location string) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "$", ""
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if len(ve.InstanceLocation) == 0 {
		return "$", ""
	}
	return ve.InstanceLocation[0], strings.Join(ve.InstanceLocation, "/")
}

type workItem struct {
	id   int
	item roadmap.Item
}

// session accumulates the repairs of one validation run.
type session struct {
	cfg       config.Engine
	g         *catalog.Graph
	completed map[string]bool
	repairs   []roadmap.Repair
	warnings  []string
	touched   map[int]bool
	nextID    int
	inserted  int
}

func newSession(cfg config.Engine, g *catalog.Graph, sc profile.StudentContext) *session {
	return &session{
		cfg:       cfg,
		g:         g,
		completed: sc.CompletedSet(),
		touched:   make(map[int]bool),
	}
}

// repair records a change. id < 0 marks a roadmap-level repair that does
// not count against any item.
func (s *session) repair(id int, kind, field, detail string) {
	s.repairs = append(s.repairs, roadmap.Repair{Kind: kind, Field: field, Detail: detail})
	if id >= 0 {
		s.touched[id] = true
	}
}

func (s *session) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

func (s *session) drop(id int, ref, reason string) {
	s.repair(id, "drop", itemField(id), fmt.Sprintf("%q: %s", ref, reason))
	s.warn(fmt.Sprintf("dropped item %d (%q): %s", id, ref, reason))
}

func itemField(id int) string {
	return fmt.Sprintf("learning_path[%d]", id)
}

// normalizeItem applies the per-item rules. ok is false when the item was
// dropped.
func (s *session) normalizeItem(id int, ri rawItem) (roadmap.Item, bool) {
	ref := strings.TrimSpace(ri.Reference)
	if ref == "" {
		s.drop(id, "", "empty reference")
		return roadmap.Item{}, false
	}
	kind := roadmap.ItemKind(strings.ToLower(strings.TrimSpace(ri.Kind)))
	rationale := strings.TrimSpace(ri.Rationale)

	node, resolved := s.g.Resolve(ref)
	if kind == roadmap.KindRemedial {
		if rationale == "" {
			s.drop(id, ref, "remedial item without rationale")
			return roadmap.Item{}, false
		}
	} else {
		if !resolved {
			s.drop(id, ref, "unresolvable reference")
			return roadmap.Item{}, false
		}
		want := roadmap.ItemKind(node.Kind)
		if kind != want && kind != roadmap.KindAssessment {
			s.repair(id, "kind", itemField(id)+".kind", fmt.Sprintf("%q -> %q", kind, want))
			kind = want
		}
	}

	it := roadmap.Item{Ref: ref, Kind: kind, Rationale: rationale}
	if resolved {
		it.Difficulty = node.Difficulty
		it.Topics = slices.Clone(node.Topics)
	} else {
		d, err := catalog.ParseDifficulty(ri.Difficulty)
		if err != nil {
			d = catalog.Beginner
		}
		it.Difficulty = d
		it.Topics = topicSet(ri.Topics)
		if topic, ok := strings.CutPrefix(ref, "review:"); ok && len(it.Topics) == 0 && topic != "" {
			it.Topics = []string{topic}
		}
	}

	minutes := int(math.Round(ri.EstimatedMinutes))
	if minutes <= 0 {
		est := 0
		if resolved {
			est = node.DurationMinutes
		}
		if est <= 0 {
			est = s.cfg.DefaultRemedialMinutes
		}
		s.repair(id, "time", itemField(id)+".estimated_minutes", fmt.Sprintf("%d -> %d", minutes, est))
		minutes = est
	}
	if minutes > s.cfg.MaxItemMinutes {
		s.repair(id, "time_clamp", itemField(id)+".estimated_minutes", fmt.Sprintf("%d -> %d", minutes, s.cfg.MaxItemMinutes))
		minutes = s.cfg.MaxItemMinutes
	}
	it.EstimatedMinutes = minutes
	return it, true
}

// insertPrerequisites adds in-graph prerequisites that are neither
// completed nor in the path, directly before the first item needing them.
func (s *session) insertPrerequisites(items []workItem) []workItem {
	inPath := make(map[string]bool, len(items))
	for _, w := range items {
		inPath[w.item.Ref] = true
	}
	out := make([]workItem, 0, len(items))
	for _, w := range items {
		for _, ref := range s.g.PendingAncestors(w.item.Ref, s.completed) {
			if inPath[ref] {
				continue
			}
			c, _ := s.g.Course(ref)
			minutes := c.DurationMinutes
			if minutes <= 0 {
				minutes = s.cfg.DefaultRemedialMinutes
			}
			id := s.nextID
			s.nextID++
			s.inserted++
			s.repair(id, "insert_prerequisite", "learning_path", fmt.Sprintf("%q before %q", ref, w.item.Ref))
			out = append(out, workItem{id: id, item: roadmap.Item{
				Ref:              ref,
				Kind:             roadmap.KindCourse,
				EstimatedMinutes: min(minutes, s.cfg.MaxItemMinutes),
				Difficulty:       c.Difficulty,
				Topics:           slices.Clone(c.Topics),
				Rationale:        fmt.Sprintf("Prerequisite of %s", w.item.Ref),
			}})
			inPath[ref] = true
		}
		out = append(out, w)
	}
	return out
}

// enforceOrder moves any item that precedes one of its prerequisites to
// just after the last of them, until the order is stable.
func (s *session) enforceOrder(items []workItem) []workItem {
	limit := len(items)*len(items) + 1
	for range limit {
		index := make(map[string]int, len(items))
		for i, w := range items {
			if _, ok := index[w.item.Ref]; !ok {
				index[w.item.Ref] = i
			}
		}
		moved := false
		for i, w := range items {
			last := -1
			for _, p := range s.g.Prerequisites(w.item.Ref) {
				if j, ok := index[p]; ok && j > i && j > last {
					last = j
				}
			}
			if last < 0 {
				continue
			}
			items = slices.Delete(items, i, i+1)
			items = slices.Insert(items, last, w)
			s.repair(w.id, "reorder", itemField(w.id), fmt.Sprintf("%q moved after its prerequisites", w.item.Ref))
			moved = true
			break
		}
		if !moved {
			break
		}
	}
	return items
}

func (s *session) progression(raw rawProgression, items []roadmap.Item) roadmap.Progression {
	start, errStart := catalog.ParseDifficulty(raw.Start)
	end, errEnd := catalog.ParseDifficulty(raw.End)
	if errStart != nil || errEnd != nil {
		p := roadmap.ProgressionOf(items)
		s.repair(-1, "progression", "difficulty_progression", fmt.Sprintf("derived %s..%s", p.Start, p.End))
		return p
	}
	if end.Less(start) {
		s.repair(-1, "progression_swap", "difficulty_progression", fmt.Sprintf("%s..%s swapped", start, end))
		start, end = end, start
	}
	return roadmap.Progression{Start: start, End: end}
}

func topicSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
