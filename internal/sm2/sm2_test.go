package sm2

import (
	"errors"
	"math"
	"testing"
	"time"
)

var reviewTime = time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

func TestScheduleScenarios(t *testing.T) {
	testCases := []struct {
		name         string
		prior        State
		quality      Quality
		wantInterval int
		wantEase     float64
		wantCount    int
	}{
		{
			name:         "first perfect review",
			prior:        Initial(),
			quality:      Perfect,
			wantInterval: 1,
			wantEase:     2.6,
			wantCount:    1,
		},
		{
			name:         "second consecutive success",
			prior:        State{Interval: 1, EaseFactor: 2.6, ReviewCount: 1},
			quality:      Perfect,
			wantInterval: 6,
			wantEase:     2.7,
			wantCount:    2,
		},
		{
			name:         "third success multiplies by ease factor",
			prior:        State{Interval: 6, EaseFactor: 2.7, ReviewCount: 2},
			quality:      Perfect,
			wantInterval: 16,
			wantEase:     2.8,
			wantCount:    3,
		},
		{
			name:         "lapse resets the cycle",
			prior:        State{Interval: 16, EaseFactor: 2.7, ReviewCount: 3},
			quality:      Incorrect,
			wantInterval: 1,
			wantEase:     2.16,
			wantCount:    0,
		},
		{
			name:         "hard pass lowers ease factor",
			prior:        Initial(),
			quality:      CorrectHard,
			wantInterval: 1,
			wantEase:     2.36,
			wantCount:    1,
		},
		{
			name:         "hesitant pass keeps ease factor",
			prior:        State{Interval: 6, EaseFactor: 2.5, ReviewCount: 2},
			quality:      CorrectHesitant,
			wantInterval: 15,
			wantEase:     2.5,
			wantCount:    3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Schedule(tc.quality, tc.prior, reviewTime)
			if err != nil {
				t.Fatalf("Schedule() returned an unexpected error: %v", err)
			}
			if got.Interval != tc.wantInterval {
				t.Errorf("Expected interval %d, but got %d", tc.wantInterval, got.Interval)
			}
			if math.Abs(got.EaseFactor-tc.wantEase) > 1e-9 {
				t.Errorf("Expected ease factor %.4f, but got %.4f", tc.wantEase, got.EaseFactor)
			}
			if got.ReviewCount != tc.wantCount {
				t.Errorf("Expected review count %d, but got %d", tc.wantCount, got.ReviewCount)
			}
			want := reviewTime.AddDate(0, 0, tc.wantInterval)
			if !got.NextReviewAt.Equal(want) {
				t.Errorf("Expected next review at %v, but got %v", want, got.NextReviewAt)
			}
		})
	}
}

func TestScheduleSuccessIntervals(t *testing.T) {
	for q := CorrectHard; q <= Perfect; q++ {
		first, err := Schedule(q, State{Interval: 0, EaseFactor: 2.5, ReviewCount: 0}, reviewTime)
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if first.Interval != 1 || first.ReviewCount != 1 {
			t.Errorf("quality %d after no successes: got interval %d, count %d", q, first.Interval, first.ReviewCount)
		}

		second, err := Schedule(q, State{Interval: 3, EaseFactor: 1.9, ReviewCount: 1}, reviewTime)
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if second.Interval != 6 || second.ReviewCount != 2 {
			t.Errorf("quality %d after one success: got interval %d, count %d", q, second.Interval, second.ReviewCount)
		}

		for _, prior := range []State{
			{Interval: 6, EaseFactor: 2.5, ReviewCount: 2},
			{Interval: 11, EaseFactor: 1.3, ReviewCount: 5},
			{Interval: 40, EaseFactor: 2.85, ReviewCount: 9},
		} {
			got, err := Schedule(q, prior, reviewTime)
			if err != nil {
				t.Fatalf("quality %d: %v", q, err)
			}
			want := int(math.Round(float64(prior.Interval) * prior.EaseFactor))
			if got.Interval != want {
				t.Errorf("quality %d, prior %+v: expected interval %d, got %d", q, prior, want, got.Interval)
			}
			if got.ReviewCount != prior.ReviewCount+1 {
				t.Errorf("quality %d, prior %+v: expected count %d, got %d", q, prior, prior.ReviewCount+1, got.ReviewCount)
			}
		}
	}
}

func TestScheduleCapsInterval(t *testing.T) {
	state := Initial()
	now := reviewTime
	for i := 1; i <= 30; i++ {
		got, err := Schedule(Perfect, state, now)
		if err != nil {
			t.Fatalf("review %d: %v", i, err)
		}
		if got.Interval > MaxInterval {
			t.Errorf("review %d: interval %d exceeds %d", i, got.Interval, MaxInterval)
		}
		if !got.NextReviewAt.After(now) {
			t.Fatalf("review %d: next review %v is not after %v", i, got.NextReviewAt, now)
		}
		state = got.State
	}
	if state.Interval != MaxInterval {
		t.Errorf("Expected interval to settle at %d, but got %d", MaxInterval, state.Interval)
	}

	got, err := Schedule(CorrectHard, State{Interval: MaxInterval, EaseFactor: 2.5, ReviewCount: 12}, reviewTime)
	if err != nil {
		t.Fatal(err)
	}
	if got.Interval != MaxInterval {
		t.Errorf("Expected capped interval %d, but got %d", MaxInterval, got.Interval)
	}
}

func TestScheduleFailureResets(t *testing.T) {
	priors := []State{
		Initial(),
		{Interval: 6, EaseFactor: 2.6, ReviewCount: 2},
		{Interval: 120, EaseFactor: 3.1, ReviewCount: 8},
	}
	for q := Blackout; q < PassingQuality; q++ {
		for _, prior := range priors {
			got, err := Schedule(q, prior, reviewTime)
			if err != nil {
				t.Fatalf("quality %d: %v", q, err)
			}
			if got.Interval != 1 || got.ReviewCount != 0 {
				t.Errorf("quality %d, prior %+v: got interval %d, count %d", q, prior, got.Interval, got.ReviewCount)
			}
		}
	}
}

func TestEaseFactorFloor(t *testing.T) {
	for q := Blackout; q <= Perfect; q++ {
		for _, ef := range []float64{1.3, 1.31, 1.45, 1.7, 2.5} {
			got, err := Schedule(q, State{Interval: 4, EaseFactor: ef, ReviewCount: 2}, reviewTime)
			if err != nil {
				t.Fatalf("quality %d: %v", q, err)
			}
			if got.EaseFactor < MinEaseFactor {
				t.Errorf("quality %d, ease %.2f: ease factor dropped to %.4f", q, ef, got.EaseFactor)
			}
		}
	}

	got, _ := Schedule(Blackout, State{EaseFactor: 1.3}, reviewTime)
	if got.EaseFactor != MinEaseFactor {
		t.Errorf("Expected ease factor to be clamped to %.1f, but got %.4f", MinEaseFactor, got.EaseFactor)
	}
}

func TestScheduleRejectsInvalidGrade(t *testing.T) {
	for _, q := range []Quality{-1, 6, 42} {
		_, err := Schedule(q, Initial(), reviewTime)
		if !errors.Is(err, ErrInvalidGrade) {
			t.Errorf("quality %d: expected ErrInvalidGrade, got %v", q, err)
		}
	}
}

func TestNextReviewAt(t *testing.T) {
	got := NextReviewAt(reviewTime, 16)
	if got.Year() != 2024 || got.Month() != time.March || got.Day() != 26 {
		t.Errorf("Expected next review on 2024-03-26, but got %v", got)
	}
	if !NextReviewAt(reviewTime, 0).Equal(reviewTime) {
		t.Error("Expected a zero interval to keep the review time")
	}
}
