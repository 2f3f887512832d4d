// Package httpapi exposes roadmap generation and assessment reporting
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/adjust"
	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/engine"
	"github.com/abhisek/pathfinder/internal/logging"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
	"github.com/abhisek/pathfinder/internal/store"
)

// Generator is the generation side. *engine.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, req engine.Request) (*engine.Result, error)
	Current(ctx context.Context, studentID string) (*roadmap.Roadmap, error)
}

// Adjuster is the adjustment side. *adjust.Engine satisfies it.
type Adjuster interface {
	Adjust(ctx context.Context, studentID string, trigger profile.AssessmentRecord) (*adjust.Outcome, error)
	Refresh(ctx context.Context, studentID string) ([]roadmap.Pattern, error)
}

// AssessmentLog appends assessment results. *store.AssessmentRepo
// satisfies it.
type AssessmentLog interface {
	AppendAssessment(ctx context.Context, studentID string, rec profile.AssessmentRecord) error
}

// PatternReader lists stored patterns. *store.PatternRepo satisfies it.
type PatternReader interface {
	ActivePatterns(ctx context.Context, studentID string) ([]roadmap.Pattern, error)
	History(ctx context.Context, studentID string) ([]roadmap.Pattern, error)
}

type Deps struct {
	Generator   Generator
	Adjuster    Adjuster
	Assessments AssessmentLog
	Patterns    PatternReader
	Profiles    adjust.ContextBuilder
}

// Handler serves the student-facing endpoints.
type Handler struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

func NewHandler(deps Deps, log *zap.Logger) *Handler {
	return &Handler{deps: deps, log: logging.OrNop(log), now: time.Now}
}

type generateRequest struct {
	TargetSkills   []string `json:"target_skills"`
	TimeConstraint string   `json:"time_constraint"`
	Force          bool     `json:"force"`
	AllowDrafts    bool     `json:"allow_drafts"`
}

type generateResponse struct {
	Roadmap        *roadmap.Roadmap `json:"roadmap"`
	Trace          []engine.State   `json:"trace"`
	Reused         bool             `json:"reused"`
	Preview        bool             `json:"preview,omitempty"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// GenerateRoadmap handles POST /api/students/:id/roadmap. An empty body
// generates with default options. Draft previews are returned with 200
// and not stored.
func (h *Handler) GenerateRoadmap(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := h.deps.Generator.Generate(c.Request.Context(), engine.Request{
		StudentID:      c.Param("id"),
		TargetSkills:   req.TargetSkills,
		TimeConstraint: req.TimeConstraint,
		Force:          req.Force,
		AllowDrafts:    req.AllowDrafts,
	})
	if err != nil {
		h.fail(c, "generate roadmap", err)
		return
	}

	resp := generateResponse{
		Roadmap:        res.Roadmap,
		Trace:          res.Trace,
		Reused:         res.Reused,
		Preview:        res.Preview,
		FallbackReason: res.FallbackReason,
		Warnings:       res.Warnings,
	}
	if res.Reused || res.Preview {
		success(c, resp)
		return
	}
	created(c, resp)
}

type itemView struct {
	roadmap.Item
	Status roadmap.ItemStatus `json:"status"`
}

type roadmapView struct {
	*roadmap.Roadmap
	Items    []itemView `json:"learning_path"`
	Position int        `json:"current_position"`
}

// GetRoadmap handles GET /api/students/:id/roadmap. Item statuses are
// derived from the student's current progress.
func (h *Handler) GetRoadmap(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	rm, err := h.deps.Generator.Current(ctx, id)
	if err != nil {
		h.fail(c, "load roadmap", err)
		return
	}

	var completed, inProgress map[string]bool
	if sc, err := h.deps.Profiles.Build(ctx, id); err != nil {
		h.log.Warn("item statuses unavailable", zap.String("student_id", id), zap.Error(err))
	} else {
		completed, inProgress = sc.CompletedSet(), sc.InProgressSet()
	}

	view := roadmapView{
		Roadmap:  rm,
		Items:    make([]itemView, len(rm.Items)),
		Position: roadmap.PositionMarker(rm.Items, completed),
	}
	for i, it := range rm.Items {
		view.Items[i] = itemView{Item: it, Status: roadmap.StatusOf(it, completed, inProgress)}
	}
	success(c, view)
}

type assessmentRequest struct {
	ID          string    `json:"id" binding:"required"`
	Topics      []string  `json:"topics" binding:"required,min=1"`
	Score       *float64  `json:"score" binding:"required,min=0,max=100"`
	Passed      bool      `json:"passed"`
	WrongTopics []string  `json:"wrong_topics"`
	Timestamp   time.Time `json:"timestamp"`
}

type outcomeView struct {
	Roadmap          *roadmap.Roadmap  `json:"roadmap"`
	Patterns         []roadmap.Pattern `json:"patterns"`
	Gaps             []string          `json:"gaps,omitempty"`
	Inserted         []roadmap.Item    `json:"inserted,omitempty"`
	RemedialStrategy roadmap.Strategy  `json:"remedial_strategy,omitempty"`
	AlternativePath  string            `json:"alternative_path,omitempty"`
	Mutated          bool              `json:"mutated"`
	Degraded         bool              `json:"degraded"`
}

func viewOutcome(o *adjust.Outcome) outcomeView {
	return outcomeView{
		Roadmap:          o.Roadmap,
		Patterns:         o.Patterns,
		Gaps:             o.Gaps,
		Inserted:         o.Inserted,
		RemedialStrategy: o.RemedialStrategy,
		AlternativePath:  o.AlternativePath,
		Mutated:          o.Mutated,
		Degraded:         o.Degraded,
	}
}

// ReportAssessment handles POST /api/students/:id/assessments. The
// result is appended to the history and the roadmap adjusted. Re-posting
// an already stored assessment re-runs the adjustment, so a client may
// retry after a conflict.
func (h *Handler) ReportAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid assessment: "+err.Error())
		return
	}
	rec := profile.AssessmentRecord{
		ID:          req.ID,
		Topics:      req.Topics,
		Score:       *req.Score,
		Passed:      req.Passed,
		WrongTopics: req.WrongTopics,
		Timestamp:   req.Timestamp,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = h.now().UTC()
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.deps.Assessments.AppendAssessment(ctx, id, rec); err != nil {
		if !errors.Is(err, store.ErrDuplicateAssessment) {
			h.fail(c, "record assessment", err)
			return
		}
		h.log.Debug("assessment already recorded", zap.String("student_id", id), zap.String("assessment_id", rec.ID))
	}

	out, err := h.deps.Adjuster.Adjust(ctx, id, rec)
	if errors.Is(err, roadmap.ErrAdjustmentDegraded) && out != nil {
		c.JSON(http.StatusOK, Response{
			Code:    http.StatusOK,
			Message: "roadmap unchanged: " + err.Error(),
			Data:    viewOutcome(out),
		})
		return
	}
	if err != nil {
		h.fail(c, "adjust roadmap", err)
		return
	}
	success(c, viewOutcome(out))
}

// ListPatterns handles GET /api/students/:id/patterns. ?all=true includes
// superseded records.
func (h *Handler) ListPatterns(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		list []roadmap.Pattern
		err  error
	)
	if strings.EqualFold(c.Query("all"), "true") {
		list, err = h.deps.Patterns.History(ctx, id)
	} else {
		list, err = h.deps.Patterns.ActivePatterns(ctx, id)
	}
	if err != nil {
		h.fail(c, "list patterns", err)
		return
	}
	if list == nil {
		list = []roadmap.Pattern{}
	}
	success(c, list)
}

// RefreshPatterns handles POST /api/students/:id/patterns/refresh.
func (h *Handler) RefreshPatterns(c *gin.Context) {
	list, err := h.deps.Adjuster.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "refresh patterns", err)
		return
	}
	if list == nil {
		list = []roadmap.Pattern{}
	}
	success(c, list)
}

func (h *Handler) Health(c *gin.Context) {
	success(c, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error(op+" failed", zap.String("student_id", c.Param("id")), zap.Error(err))
	}
	fail(c, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, profile.ErrInvalidTimeConstraint):
		return http.StatusBadRequest
	case errors.Is(err, roadmap.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, roadmap.ErrConcurrentAdjustment), errors.Is(err, store.ErrDuplicateAssessment):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrCycleDetected), errors.Is(err, roadmap.ErrInvalidRoadmap):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoRemedial):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
