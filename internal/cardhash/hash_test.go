package cardhash

import (
	"testing"

	"github.com/conorfennell/recall/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Question: "  What is the supreme law of the land? \r\n",
		Answer:   "The Constitution",
		Category: "Principles of American Democracy",
	}
	expected := "what is the supreme law of the land?\nthe constitution"
	if got := Normalize(card); got != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, got)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// Hash for "q\na"
		expected := "27d2d5c8276a1f606af38834a9294ae5d3bfc6c5097c03e3fdd6e8c5c37e2ba7"
		if got := Hash(domain.Card{Question: "Q", Answer: "A"}); got != expected {
			t.Errorf("Expected hash '%s', but got '%s'", expected, got)
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.Card{Question: "  what is go? ", Answer: "A programming language."}
		card2 := domain.Card{Question: "What Is Go?", Answer: "a programming language.\r\n"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("category does not change identity", func(t *testing.T) {
		card1 := domain.Card{Question: "Who makes federal laws?", Answer: "Congress", Category: "a"}
		card2 := domain.Card{Question: "Who makes federal laws?", Answer: "Congress", Category: "b", Translation: "의회"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected category and translation to be ignored")
		}
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		card1 := domain.Card{Question: "ab", Answer: "c"}
		card2 := domain.Card{Question: "a", Answer: "bc"}
		if Hash(card1) == Hash(card2) {
			t.Error("Expected hashes for different cards to be different")
		}
	})
}
