package domain

import (
	"errors"
	"time"
)

// DefaultCategory is assigned to cards created without a category.
const DefaultCategory = "general"

var (
	// ErrCardNotFound is returned when an operation references a card id that does not exist.
	ErrCardNotFound = errors.New("card not found")

	// ErrDuplicateCard is returned when a card with identical content already exists.
	ErrDuplicateCard = errors.New("card already exists")

	// ErrSourceNotFound is returned when an operation references a source id that does not exist.
	ErrSourceNotFound = errors.New("source not found")
)

// Card represents a single question-answer entry.
type Card struct {
	ID          int64
	Question    string
	Answer      string
	Translation string
	Category    string
	Hash        string
	SourceID    int64 // 0 when the card was not imported from a source
}

// Progress is the retention state of one reviewed card.
// A card without a Progress has never been reviewed.
type Progress struct {
	CardID         int64
	Interval       int // days
	EaseFactor     float64
	ReviewCount    int // consecutive successful reviews
	NextReviewAt   time.Time
	LastReviewedAt time.Time
}

// CardProgress pairs a reviewed card with its progress.
type CardProgress struct {
	Card     Card
	Progress Progress
}

// SessionItem is one entry of a study session.
// Progress is nil for new cards.
type SessionItem struct {
	Card     Card
	Progress *Progress
	IsNew    bool
}

// Stats summarises the state of the whole deck.
type Stats struct {
	TotalLearned int
	DueToday     int
	NewRemaining int
}

// Source is a deck location cards are imported from, either a local path or a git URL.
type Source struct {
	ID           int64
	Path         string
	LastImported time.Time
}
