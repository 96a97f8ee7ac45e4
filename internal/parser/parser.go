package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

// A deck file holds cards as prefixed blocks:
//
//	Q: question, may continue on following lines
//	A: answer
//	T: optional translation
//	C: optional category
//	---
//
// A new Q: or a --- line ends the current card.
const (
	questionPrefix    = "Q:"
	answerPrefix      = "A:"
	translationPrefix = "T:"
	categoryPrefix    = "C:"
	separator         = "---"
)

type field int

const (
	none field = iota
	question
	answer
	translation
	category
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{questionPrefix, question},
	{answerPrefix, answer},
	{translationPrefix, translation},
	{categoryPrefix, category},
}

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a deck from r. Cards without both a question and an answer are dropped.
// Cards without a category get domain.DefaultCategory.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)

	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		active  = none
	)

	flushBlock := func() {
		if active == none || len(block) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch active {
		case question:
			current.Question = content
		case answer:
			current.Answer = content
		case translation:
			current.Translation = content
		case category:
			current.Category = strings.TrimSpace(content)
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if current.Question != "" && current.Answer != "" {
			if current.Category == "" {
				current.Category = domain.DefaultCategory
			}
			cards = append(cards, current)
		}
		current = domain.Card{}
		active = none
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finishCard()
			continue
		}

		next, content, ok := prefixed(line)
		if !ok {
			if active != none {
				block = append(block, line)
			}
			continue
		}

		if next == question && active != none {
			finishCard()
		} else {
			flushBlock()
		}
		active = next
		block = append(block, content)
	}

	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}

// prefixed reports which field line opens, if any, and the content after the prefix.
func prefixed(line string) (field, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			return p.field, strings.TrimPrefix(line[len(p.prefix):], " "), true
		}
	}
	return none, "", false
}
