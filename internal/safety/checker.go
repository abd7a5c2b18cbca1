// Package safety screens user text before it reaches the answer service.
package safety

import (
	"strings"

	goaway "github.com/TwiN/go-away"
)

// Checker flags inappropriate content. It is pure and safe for concurrent use.
type Checker struct {
	detector *goaway.ProfanityDetector
}

// NewChecker builds a checker over the default profanity dictionary extended
// with extraTerms.
func NewChecker(extraTerms ...string) *Checker {
	profanities := make([]string, 0, len(goaway.DefaultProfanities)+len(extraTerms))
	profanities = append(profanities, goaway.DefaultProfanities...)
	for _, term := range extraTerms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			profanities = append(profanities, term)
		}
	}

	detector := goaway.NewProfanityDetector().WithCustomDictionary(
		profanities,
		goaway.DefaultFalsePositives,
		goaway.DefaultFalseNegatives,
	)
	return &Checker{detector: detector}
}

// IsFlagged reports whether text contains a flagged term.
func (c *Checker) IsFlagged(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return c.detector.IsProfane(text)
}
