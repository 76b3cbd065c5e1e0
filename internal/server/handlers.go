package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/plantdocs/scada-rag/internal/evaluation"
	"github.com/plantdocs/scada-rag/internal/generation"
	"github.com/plantdocs/scada-rag/internal/ingest"
	"github.com/plantdocs/scada-rag/internal/relstore"
	"github.com/plantdocs/scada-rag/internal/retrieval"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.reg.Vectors.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "qdrant": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type checkPendingRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleCheckPending(c *gin.Context) {
	var req checkPendingRequest
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	pending, err := s.reg.Ingest.Check(c.Request.Context(), req.Paths)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pending == nil {
		pending = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

type processRequest struct {
	Path string `json:"path"`
}

type documentResponse struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
	FileName   string `json:"file_name"`
	Language   string `json:"language"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
}

func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Path == "" {
		badRequest(c, errors.New("path is required"))
		return
	}

	doc, chunks, err := s.reg.Ingest.Process(c.Request.Context(), req.Path)
	switch {
	case errors.Is(err, ingest.ErrDuplicateDocument):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ingest.ErrExtractionFailure):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, documentResponse{
		ID:         doc.ID,
		SourcePath: doc.SourcePath,
		FileName:   doc.FileName,
		Language:   doc.Language,
		Status:     doc.Status,
		Chunks:     chunks,
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

type contextResponse struct {
	Position     int     `json:"position"`
	ChunkID      string  `json:"chunk_id"`
	Text         string  `json:"text"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	FusedScore   float64 `json:"fused_score"`
	RerankScore  float64 `json:"rerank_score"`
}

type queryResponse struct {
	QueryID         string            `json:"query_id"`
	AnswerText      string            `json:"answer_text"`
	Language        string            `json:"language"`
	RewriteDegraded bool              `json:"rewrite_degraded"`
	RerankDegraded  bool              `json:"rerank_degraded"`
	Contexts        []contextResponse `json:"contexts"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Query == "" {
		badRequest(c, errors.New("query is required"))
		return
	}

	answer, err := s.reg.Query.Execute(c.Request.Context(), req.Query)
	switch {
	case errors.Is(err, retrieval.ErrRetrievalUnavailable),
		errors.Is(err, generation.ErrGenerationUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	contexts := make([]contextResponse, len(answer.Contexts))
	for i, ctx := range answer.Contexts {
		contexts[i] = contextResponse{
			Position:     ctx.Position,
			ChunkID:      ctx.ChunkID,
			Text:         ctx.ChunkText,
			LexicalScore: ctx.LexicalScore,
			VectorScore:  ctx.VectorScore,
			FusedScore:   ctx.FusedScore,
			RerankScore:  ctx.RerankScore,
		}
	}

	c.JSON(http.StatusOK, queryResponse{
		QueryID:         answer.QueryID,
		AnswerText:      answer.AnswerText,
		Language:        answer.Language,
		RewriteDegraded: answer.RewriteDegraded,
		RerankDegraded:  answer.RerankDegraded,
		Contexts:        contexts,
	})
}

type feedbackRequest struct {
	QueryID string `json:"query_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	// Reject feedback on queries that were never traced.
	if _, err := s.reg.Rel.Traces().Get(c.Request.Context(), req.QueryID); err != nil {
		if errors.Is(err, relstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown query_id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	fb := &relstore.Feedback{
		ID:      uuid.New().String(),
		QueryID: req.QueryID,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	if err := s.reg.Rel.Feedback().Save(c.Request.Context(), fb); err != nil {
		if errors.Is(err, relstore.ErrInvalidRating) {
			badRequest(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback_id": fb.ID})
}

type annotationItem struct {
	FeedbackID     string `json:"feedback_id"`
	ExpectedOutput string `json:"expected_output"`
}

type annotationsRequest struct {
	Annotations []annotationItem `json:"annotations"`
	AnnotatedBy string           `json:"annotated_by"`
}

func (s *Server) handleAnnotations(c *gin.Context) {
	var req annotationsRequest
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Annotations) == 0 {
		badRequest(c, errors.New("annotations are required"))
		return
	}

	annotations := make([]relstore.Annotation, len(req.Annotations))
	for i, a := range req.Annotations {
		annotations[i] = relstore.Annotation{
			FeedbackID:     a.FeedbackID,
			ExpectedOutput: a.ExpectedOutput,
			AnnotatedBy:    req.AnnotatedBy,
		}
	}
	if err := s.reg.Rel.Feedback().SaveAnnotations(c.Request.Context(), annotations); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": len(annotations)})
}

type lowRatedItem struct {
	FeedbackID     string    `json:"feedback_id"`
	QueryID        string    `json:"query_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	SubmittedAt    time.Time `json:"submitted_at"`
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	ExpectedOutput string    `json:"expected_output,omitempty"`
}

func (s *Server) handleLowRated(c *gin.Context) {
	windowDays := s.reg.Config.WindowDays
	if v := c.Query("window_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			badRequest(c, errors.New("window_days must be a positive integer"))
			return
		}
		windowDays = parsed
	}

	now := time.Now().UTC()
	items, err := s.reg.Rel.Feedback().LowRated(c.Request.Context(),
		evaluation.DefaultMaxRating, now.AddDate(0, 0, -windowDays), now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]lowRatedItem, len(items))
	for i, it := range items {
		out[i] = lowRatedItem{
			FeedbackID:     it.Feedback.ID,
			QueryID:        it.Feedback.QueryID,
			Rating:         it.Feedback.Rating,
			Comment:        it.Feedback.Comment,
			SubmittedAt:    it.Feedback.SubmittedAt,
			Query:          it.Trace.RawQuery,
			Answer:         it.Trace.AnswerText,
			ExpectedOutput: it.ExpectedOutput,
		}
	}
	c.JSON(http.StatusOK, gin.H{"feedback": out})
}

type evaluationDataItem struct {
	QueryText      string   `json:"query_text"`
	ExpectedOutput string   `json:"expected_output"`
	Context        []string `json:"context"`
	FeedbackID     string   `json:"feedback_id"`
}

type evaluationRunRequest struct {
	SuiteName  string               `json:"evaluation_suite_name"`
	Models     []string             `json:"evaluation_models"`
	WindowDays int                  `json:"window_days"`
	Data       []evaluationDataItem `json:"evaluation_data"`
}

func (s *Server) handleEvaluationRun(c *gin.Context) {
	var req evaluationRunRequest
	if err := bindStrict(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.SuiteName == "" {
		badRequest(c, errors.New("evaluation_suite_name is required"))
		return
	}
	models := req.Models
	if len(models) == 0 {
		models = s.reg.Config.JudgeModels
	}
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = s.reg.Config.WindowDays
	}

	points, err := s.resolveDataPoints(c.Request.Context(), req.Data)
	if err != nil {
		badRequest(c, err)
		return
	}

	// The run outlives the HTTP request; it is detached from the caller's
	// cancellation and reported through its persisted status.
	report, err := s.reg.Orchestrator.Run(context.WithoutCancel(c.Request.Context()), evaluation.RunRequest{
		SuiteName:  req.SuiteName,
		Models:     models,
		WindowDays: windowDays,
		DataPoints: points,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": report.RunID, "aggregates": report.Aggregates})
}

// resolveDataPoints converts explicit evaluation_data items into scoring
// data points. An item naming a feedback_id is hydrated from the stored
// trace; query text and contexts given inline take precedence over the
// traced values.
func (s *Server) resolveDataPoints(ctx context.Context, items []evaluationDataItem) ([]evaluation.DataPoint, error) {
	if len(items) == 0 {
		return nil, nil
	}

	points := make([]evaluation.DataPoint, 0, len(items))
	for i, item := range items {
		if item.QueryText == "" && item.FeedbackID == "" {
			return nil, fmt.Errorf("evaluation_data[%d]: query_text or feedback_id is required", i)
		}

		dp := evaluation.DataPoint{
			Query:          item.QueryText,
			Contexts:       item.Context,
			ExpectedOutput: item.ExpectedOutput,
			FeedbackID:     item.FeedbackID,
		}

		if item.FeedbackID != "" {
			fb, err := s.reg.Rel.Feedback().Get(ctx, item.FeedbackID)
			if err != nil {
				if errors.Is(err, relstore.ErrNotFound) {
					return nil, fmt.Errorf("evaluation_data[%d]: unknown feedback_id %s", i, item.FeedbackID)
				}
				return nil, err
			}
			trace, err := s.reg.Rel.Traces().Get(ctx, fb.QueryID)
			if err != nil {
				return nil, err
			}
			dp.QueryID = fb.QueryID
			dp.Answer = trace.AnswerText
			if dp.Query == "" {
				dp.Query = trace.RawQuery
			}
			if len(dp.Contexts) == 0 {
				contexts, err := s.reg.Rel.Traces().Contexts(ctx, fb.QueryID)
				if err != nil {
					return nil, err
				}
				for _, tc := range contexts {
					dp.Contexts = append(dp.Contexts, tc.ChunkText)
				}
			}
		}

		points = append(points, dp)
	}
	return points, nil
}

func (s *Server) handleEvaluationResults(c *gin.Context) {
	evals := s.reg.Rel.Evaluations()

	if runID := c.Query("run_id"); runID != "" {
		results, err := evals.ResultsByRun(c.Request.Context(), runID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
		return
	}

	from, to, err := parseWindow(c.Query("from"), c.Query("to"))
	if err != nil {
		badRequest(c, err)
		return
	}
	results, err := evals.ResultsByWindow(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	if fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = parsed
	}
	return from, to, nil
}
