// Package study implements review submission, session composition and deck
// statistics on top of the SM-2 scheduler and a progress store.
package study

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/sm2"
)

// Store is the persistence the study service needs.
type Store interface {
	// UpdateProgress atomically loads a card's progress (nil if never reviewed),
	// applies fn and stores the result. It returns domain.ErrCardNotFound for
	// unknown cards without creating anything.
	UpdateProgress(ctx context.Context, cardID int64, fn func(prior *domain.Progress) (domain.Progress, error)) (*domain.Progress, error)
	ListDue(ctx context.Context, limit int, now time.Time) ([]domain.CardProgress, error)
	ListNew(ctx context.Context, limit int) ([]domain.Card, error)
	CountProgress(ctx context.Context) (int, error)
	CountDue(ctx context.Context, now time.Time) (int, error)
	CountNew(ctx context.Context) (int, error)
}

// Service grades reviews and composes study sessions.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used to timestamp reviews and decide what is due.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "study")
	return s
}

// Review grades a review of cardID with the given quality and persists the new schedule.
//
// An out-of-range quality returns sm2.ErrInvalidGrade before the store is touched.
// An unknown card returns domain.ErrCardNotFound. Store failures are returned wrapped;
// in every error case the previously stored progress is unchanged.
func (s *Service) Review(ctx context.Context, cardID int64, quality int) (*domain.Progress, error) {
	q := sm2.Quality(quality)
	if !q.Valid() {
		return nil, sm2.ErrInvalidGrade
	}

	now := s.now()
	updated, err := s.store.UpdateProgress(ctx, cardID, func(prior *domain.Progress) (domain.Progress, error) {
		state := sm2.Initial()
		if prior != nil {
			state = sm2.State{
				Interval:    prior.Interval,
				EaseFactor:  prior.EaseFactor,
				ReviewCount: prior.ReviewCount,
			}
		}

		next, err := sm2.Schedule(q, state, now)
		if err != nil {
			return domain.Progress{}, err
		}

		return domain.Progress{
			CardID:         cardID,
			Interval:       next.Interval,
			EaseFactor:     next.EaseFactor,
			ReviewCount:    next.ReviewCount,
			NextReviewAt:   next.NextReviewAt,
			LastReviewedAt: now,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("review card %d: %w", cardID, err)
	}

	s.logger.Debug("review recorded",
		"card_id", cardID,
		"quality", quality,
		"interval", updated.Interval,
		"ease_factor", updated.EaseFactor,
		"review_count", updated.ReviewCount,
		"next_review_at", updated.NextReviewAt,
	)
	return updated, nil
}

// Session returns up to dueLimit due cards, most overdue first, followed by up to
// newLimit cards that have never been reviewed. Negative limits count as zero.
// An empty deck yields an empty, non-nil slice.
func (s *Service) Session(ctx context.Context, dueLimit, newLimit int) ([]domain.SessionItem, error) {
	dueLimit = max(dueLimit, 0)
	newLimit = max(newLimit, 0)

	now := s.now()
	due, err := s.store.ListDue(ctx, dueLimit, now)
	if err != nil {
		return nil, fmt.Errorf("compose session: %w", err)
	}
	fresh, err := s.store.ListNew(ctx, newLimit)
	if err != nil {
		return nil, fmt.Errorf("compose session: %w", err)
	}

	items := make([]domain.SessionItem, 0, len(due)+len(fresh))
	for _, d := range due {
		progress := d.Progress
		items = append(items, domain.SessionItem{Card: d.Card, Progress: &progress, IsNew: false})
	}
	for _, card := range fresh {
		items = append(items, domain.SessionItem{Card: card, IsNew: true})
	}

	s.logger.Debug("session composed", "due", len(due), "new", len(fresh))
	return items, nil
}

// Stats counts reviewed, due and never-reviewed cards as of now.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	now := s.now()

	learned, err := s.store.CountProgress(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	due, err := s.store.CountDue(ctx, now)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	fresh, err := s.store.CountNew(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("compute stats: %w", err)
	}

	return domain.Stats{
		TotalLearned: learned,
		DueToday:     due,
		NewRemaining: fresh,
	}, nil
}
