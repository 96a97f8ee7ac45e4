package cardhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

// Normalize joins the card's question and answer after cleaning each part.
// Category and translation are presentation details and do not affect identity.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		return strings.ToLower(strings.TrimSpace(p))
	}

	// Newline-joined so "ab"+"c" and "a"+"bc" stay distinct.
	return normalizePart(card.Question) + "\n" + normalizePart(card.Answer)
}

// Hash returns the hex SHA-256 of the normalized card content.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
