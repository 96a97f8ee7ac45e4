package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/recall/internal/deck"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/sm2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Study is the scheduling core the server exposes.
type Study interface {
	Review(ctx context.Context, cardID int64, quality int) (*domain.Progress, error)
	Session(ctx context.Context, dueLimit, newLimit int) ([]domain.SessionItem, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// Cards is the card catalogue the server exposes.
type Cards interface {
	ListCards(ctx context.Context) ([]domain.Card, error)
	GetCard(ctx context.Context, id int64) (*domain.Card, error)
	CreateCard(ctx context.Context, card domain.Card) (*domain.Card, error)
}

// Decks manages the sources cards are imported from.
type Decks interface {
	Sources(ctx context.Context) ([]domain.Source, error)
	Import(ctx context.Context, path string) (*deck.Report, error)
	SyncAll(ctx context.Context) ([]*deck.Report, error)
	Remove(ctx context.Context, sourceID int64) error
}

// Limits bounds the size of a study session.
type Limits struct {
	Due int
	New int
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	study    Study
	cards    Cards
	decks    Decks
	limits   Limits
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(study Study, cards Cards, decks Decks, limits Limits, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		study:    study,
		cards:    cards,
		decks:    decks,
		limits:   limits,
		router:   chi.NewRouter(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "web"),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/health", s.handleHealth())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/cards", s.handleListCards())
		r.Post("/cards", s.handleCreateCard())
		r.Get("/cards/{id}", s.handleGetCard())

		r.Get("/study/session", s.handleGetSession())
		r.Post("/study/review", s.handlePostReview())
		r.Get("/study/stats", s.handleGetStats())

		r.Get("/sources", s.handleGetSources())
		r.Post("/sources", s.handlePostSource())
		r.Delete("/sources/{id}", s.handleDeleteSource())
		r.Post("/sync", s.handlePostSync())
	})
}

// logRequests logs every request once it has been served.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// CardResponse is the JSON form of a card.
type CardResponse struct {
	ID          int64  `json:"id"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Translation string `json:"translation,omitempty"`
	Category    string `json:"category"`
}

// ProgressResponse is the JSON form of a card's progress.
type ProgressResponse struct {
	CardID         int64      `json:"cardId"`
	Interval       int        `json:"interval"`
	EaseFactor     float64    `json:"easeFactor"`
	ReviewCount    int        `json:"reviewCount"`
	NextReviewDate time.Time  `json:"nextReviewDate"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
}

// SessionItemResponse is one card of a study session.
type SessionItemResponse struct {
	CardResponse
	IsNew    bool              `json:"isNew"`
	Progress *ProgressResponse `json:"progress,omitempty"`
}

// CreateCardRequest is the body of POST /api/cards.
type CreateCardRequest struct {
	Question    string `json:"question" validate:"required"`
	Answer      string `json:"answer" validate:"required"`
	Translation string `json:"translation"`
	Category    string `json:"category" validate:"omitempty,max=100"`
}

// ReviewRequest is the body of POST /api/study/review.
// Quality is a pointer so a missing field is distinguishable from a 0 grade.
type ReviewRequest struct {
	CardID  int64 `json:"cardId" validate:"required,gt=0"`
	Quality *int  `json:"quality" validate:"required"`
}

// ReviewResponse is the body returned by POST /api/study/review.
type ReviewResponse struct {
	NextReviewDate string `json:"nextReviewDate"`
	Interval       int    `json:"interval"`
}

// StatsResponse is the body returned by GET /api/study/stats.
type StatsResponse struct {
	TotalLearned int `json:"totalLearned"`
	DueToday     int `json:"dueToday"`
	NewRemaining int `json:"newRemaining"`
}

// SourceResponse is the JSON form of a deck source.
type SourceResponse struct {
	ID           int64      `json:"id"`
	Path         string     `json:"path"`
	LastImported *time.Time `json:"lastImported,omitempty"`
}

// ImportRequest is the body of POST /api/sources.
type ImportRequest struct {
	Path string `json:"path" validate:"required"`
}

// ImportReportResponse summarises the import of one source.
type ImportReportResponse struct {
	Source     string   `json:"source"`
	Parsed     int      `json:"parsed"`
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toCardResponse(c domain.Card) CardResponse {
	return CardResponse{
		ID:          c.ID,
		Question:    c.Question,
		Answer:      c.Answer,
		Translation: c.Translation,
		Category:    c.Category,
	}
}

func toProgressResponse(p domain.Progress) *ProgressResponse {
	resp := &ProgressResponse{
		CardID:         p.CardID,
		Interval:       p.Interval,
		EaseFactor:     p.EaseFactor,
		ReviewCount:    p.ReviewCount,
		NextReviewDate: p.NextReviewAt,
	}
	if !p.LastReviewedAt.IsZero() {
		last := p.LastReviewedAt
		resp.LastReviewedAt = &last
	}
	return resp
}

func toSourceResponse(src domain.Source) SourceResponse {
	resp := SourceResponse{ID: src.ID, Path: src.Path}
	if !src.LastImported.IsZero() {
		last := src.LastImported
		resp.LastImported = &last
	}
	return resp
}

func toReportResponse(r *deck.Report) ImportReportResponse {
	resp := ImportReportResponse{
		Source:     r.Source,
		Parsed:     r.Parsed,
		Created:    r.Created,
		Duplicates: r.Duplicates,
		Errors:     make([]string, 0, len(r.Errors)),
	}
	for _, err := range r.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	return resp
}

// handleHealth reports that the server is up.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleListCards returns every card.
func (s *Server) handleListCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.cards.ListCards(r.Context())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp := make([]CardResponse, 0, len(cards))
		for _, c := range cards {
			resp = append(resp, toCardResponse(c))
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

// handleGetCard returns a single card.
func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid card ID"})
			return
		}
		card, err := s.cards.GetCard(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if card == nil {
			s.respondError(w, r, domain.ErrCardNotFound)
			return
		}
		s.respondJSON(w, http.StatusOK, toCardResponse(*card))
	}
}

// handleCreateCard adds a card to the deck.
func (s *Server) handleCreateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCardRequest
		if !s.decode(w, r, &req) {
			return
		}
		card, err := s.cards.CreateCard(r.Context(), domain.Card{
			Question:    req.Question,
			Answer:      req.Answer,
			Translation: req.Translation,
			Category:    req.Category,
		})
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, toCardResponse(*card))
	}
}

// handleGetSession returns the due cards followed by new cards.
func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.study.Session(r.Context(), s.limits.Due, s.limits.New)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp := make([]SessionItemResponse, 0, len(items))
		for _, item := range items {
			entry := SessionItemResponse{
				CardResponse: toCardResponse(item.Card),
				IsNew:        item.IsNew,
			}
			if item.Progress != nil {
				entry.Progress = toProgressResponse(*item.Progress)
			}
			resp = append(resp, entry)
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

// handlePostReview grades a review and returns the new schedule.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReviewRequest
		if !s.decode(w, r, &req) {
			return
		}
		progress, err := s.study.Review(r.Context(), req.CardID, *req.Quality)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, ReviewResponse{
			NextReviewDate: progress.NextReviewAt.UTC().Format(time.RFC3339Nano),
			Interval:       progress.Interval,
		})
	}
}

// handleGetStats returns the deck summary.
func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.study.Stats(r.Context())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, StatsResponse{
			TotalLearned: stats.TotalLearned,
			DueToday:     stats.DueToday,
			NewRemaining: stats.NewRemaining,
		})
	}
}

// handleGetSources lists the registered deck sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.decks.Sources(r.Context())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp := make([]SourceResponse, 0, len(sources))
		for _, src := range sources {
			resp = append(resp, toSourceResponse(src))
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

// handlePostSource registers a directory or git URL and imports it.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !s.decode(w, r, &req) {
			return
		}
		report, err := s.decks.Import(r.Context(), req.Path)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, toReportResponse(report))
	}
}

// handleDeleteSource unregisters a source. Its cards are kept.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid source ID"})
			return
		}
		if err := s.decks.Remove(r.Context(), id); err != nil {
			s.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync re-imports every source and waits for it to finish.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.decks.SyncAll(r.Context())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp := make([]ImportReportResponse, 0, len(reports))
		for _, report := range reports {
			resp = append(resp, toReportResponse(report))
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

// decode reads and validates a JSON body, writing a 400 response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "Invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return "Invalid request"
}

// respondError maps err to a status code. Unexpected errors are logged and hidden from the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sm2.ErrInvalidGrade):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Quality must be between 0 and 5"})
	case errors.Is(err, domain.ErrCardNotFound):
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: "Card not found"})
	case errors.Is(err, domain.ErrDuplicateCard):
		s.respondJSON(w, http.StatusConflict, errorResponse{Error: "Card already exists"})
	case errors.Is(err, domain.ErrSourceNotFound):
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: "Source not found"})
	case errors.Is(err, deck.ErrSourceUnavailable):
		s.logger.Warn("source unavailable", "path", r.URL.Path, "error", err)
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Source could not be read"})
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}
}

// respondJSON encodes v before writing the status, so an unencodable value becomes a 500.
func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "status", status, "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "Internal Server Error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
