package sm2

import (
	"errors"
	"math"
	"time"
)

// Quality is the learner's self-assessed recall of a card, 0 to 5.
type Quality int

const (
	Blackout        Quality = 0 // complete failure to recall
	Incorrect       Quality = 1 // wrong, but the answer was familiar
	IncorrectEasy   Quality = 2 // wrong, but the answer seemed easy once shown
	CorrectHard     Quality = 3 // correct with serious difficulty
	CorrectHesitant Quality = 4 // correct after hesitation
	Perfect         Quality = 5
)

const (
	// PassingQuality is the lowest grade counted as a successful review.
	PassingQuality = CorrectHard

	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3

	// MaxInterval caps the gap between reviews at roughly a hundred years.
	MaxInterval = 36500

	firstInterval  = 1
	secondInterval = 6
)

// ErrInvalidGrade is returned for a quality outside [0, 5].
var ErrInvalidGrade = errors.New("sm2: quality must be between 0 and 5")

// Valid reports whether q is within the 0-5 scale.
func (q Quality) Valid() bool {
	return q >= Blackout && q <= Perfect
}

// Passed reports whether q counts as a successful review.
func (q Quality) Passed() bool {
	return q >= PassingQuality
}

// State holds the scheduling state of a card.
type State struct {
	Interval    int // days until the next review
	EaseFactor  float64
	ReviewCount int // consecutive successful reviews
}

// Initial returns the state of a card that has never been reviewed.
func Initial() State {
	return State{
		Interval:    0,
		EaseFactor:  DefaultEaseFactor,
		ReviewCount: 0,
	}
}

// Update is the result of scheduling a review.
type Update struct {
	State
	NextReviewAt time.Time
}

// Schedule grades a review of quality q against the prior state and returns the
// new state together with the next review time, counted in days from now.
func Schedule(q Quality, prior State, now time.Time) (Update, error) {
	if !q.Valid() {
		return Update{}, ErrInvalidGrade
	}

	next := State{
		EaseFactor: nextEaseFactor(prior.EaseFactor, q),
	}

	if q.Passed() {
		switch prior.ReviewCount {
		case 0:
			next.Interval = firstInterval
		case 1:
			next.Interval = secondInterval
		default:
			next.Interval = int(math.Min(math.Round(float64(prior.Interval)*prior.EaseFactor), MaxInterval))
		}
		next.ReviewCount = prior.ReviewCount + 1
	} else {
		// A lapse puts the card back at the start of the short cycle.
		next.Interval = firstInterval
		next.ReviewCount = 0
	}

	return Update{
		State:        next,
		NextReviewAt: NextReviewAt(now, next.Interval),
	}, nil
}

// nextEaseFactor applies EF' = EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02)), floored at MinEaseFactor.
func nextEaseFactor(ef float64, q Quality) float64 {
	d := float64(Perfect - q)
	ef += 0.1 - d*(0.08+d*0.02)
	if ef < MinEaseFactor {
		return MinEaseFactor
	}
	return ef
}

// NextReviewAt returns the time interval calendar days after now.
func NextReviewAt(now time.Time, interval int) time.Time {
	return now.AddDate(0, 0, interval)
}
