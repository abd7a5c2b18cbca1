// Package learn serves the learning modules, the per-module quizzes and the
// product knowledge game.
package learn

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Submodule struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

type Module struct {
	ID         int64       `yaml:"id"`
	Title      string      `yaml:"title"`
	Submodules []Submodule `yaml:"submodules"`
}

// Question is a multiple-choice question. Answer is the letter of the
// correct option, A for the first.
type Question struct {
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
	Answer   string   `yaml:"answer"`
}

// CorrectIndex returns the position of the correct option, or -1 when the
// answer is missing.
func (q Question) CorrectIndex() int {
	if q.Answer == "" {
		return -1
	}
	return int(strings.ToUpper(q.Answer)[0]) - 'A'
}

type Quiz struct {
	ModuleID  int64      `yaml:"module"`
	Questions []Question `yaml:"questions"`
}

// Content is everything the learning menus serve.
type Content struct {
	Modules []Module   `yaml:"modules"`
	Quizzes []Quiz     `yaml:"quizzes"`
	Game    []Question `yaml:"game"`
}

// LoadFile reads learning content from a YAML file.
func LoadFile(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read learning file: %w", err)
	}

	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse learning file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid learning file %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks quiz references and that every answer letter names an option.
func (c *Content) Validate() error {
	modules := make(map[int64]bool)
	for _, m := range c.Modules {
		modules[m.ID] = true
	}

	var errs []error
	check := func(where string, q Question) {
		if len(q.Options) == 0 {
			errs = append(errs, fmt.Errorf("%s: question %q has no options", where, q.Question))
			return
		}
		if len(q.Answer) != 1 {
			errs = append(errs, fmt.Errorf("%s: question %q: answer must be a single letter", where, q.Question))
			return
		}
		if idx := q.CorrectIndex(); idx < 0 || idx >= len(q.Options) {
			errs = append(errs, fmt.Errorf("%s: question %q: answer %s has no option", where, q.Question, q.Answer))
		}
	}

	for _, quiz := range c.Quizzes {
		if !modules[quiz.ModuleID] {
			errs = append(errs, fmt.Errorf("quiz for unknown module %d", quiz.ModuleID))
		}
		for _, q := range quiz.Questions {
			check(fmt.Sprintf("module %d", quiz.ModuleID), q)
		}
	}
	for _, q := range c.Game {
		check("game", q)
	}
	return errors.Join(errs...)
}

func (c *Content) module(id int64) (Module, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

func (c *Content) quiz(moduleID int64) (Quiz, bool) {
	for _, q := range c.Quizzes {
		if q.ModuleID == moduleID && len(q.Questions) > 0 {
			return q, true
		}
	}
	return Quiz{}, false
}
