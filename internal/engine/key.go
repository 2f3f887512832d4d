package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"golang.org/x/mod/semver"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// keyInput is everything that can change a generated roadmap. AsOf only
// matters through the time budget, so it enters at day granularity and
// only when a target date is set.
type keyInput struct {
	StudentID      string              `json:"student_id"`
	Knowledge      map[string]float64  `json:"knowledge"`
	Preferences    profile.Preferences `json:"preferences"`
	Completed      []string            `json:"completed"`
	InProgress     []string            `json:"in_progress"`
	Gaps           []string            `json:"gaps"`
	Day            string              `json:"day,omitempty"`
	Catalog        string              `json:"catalog"`
	TargetSkills   []string            `json:"target_skills"`
	TimeConstraint string              `json:"time_constraint"`
	AllowDrafts    bool                `json:"allow_drafts"`
}

// RequestKey fingerprints a generation request. Two requests with the same
// key would produce interchangeable roadmaps.
func RequestKey(sc profile.StudentContext, g *catalog.Graph, req Request) string {
	in := keyInput{
		StudentID:      sc.StudentID,
		Knowledge:      sc.Knowledge,
		Preferences:    sc.Preferences,
		Completed:      sc.Completed,
		InProgress:     sc.InProgress,
		Gaps:           sc.KnowledgeGaps,
		Catalog:        g.Fingerprint(),
		TargetSkills:   slices.Sorted(slices.Values(req.TargetSkills)),
		TimeConstraint: req.TimeConstraint,
		AllowDrafts:    req.AllowDrafts,
	}
	if sc.Preferences.TargetDate != nil {
		in.Day = sc.AsOf.UTC().Format("2006-01-02")
	}
	// json.Marshal sorts map keys, so the encoding is stable.
	b, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RequestFor rebuilds the request a stored roadmap answers, so its key can
// be recomputed after the student context changes.
func RequestFor(r *roadmap.Roadmap) Request {
	return Request{
		StudentID:      r.StudentID,
		TargetSkills:   r.Scope.TargetSkills,
		TimeConstraint: r.Scope.TimeConstraint,
	}
}

// Compatible reports whether a stored roadmap's format version can be
// reused by this build: same major version.
func Compatible(version string) bool {
	if !semver.IsValid(version) {
		return false
	}
	return semver.Major(version) == semver.Major(roadmap.FormatVersion)
}
