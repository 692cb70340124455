package fakeapi

import (
	"go.uber.org/zap"

	"github.com/gravitrone/tdome/internal/api"
)

var demoTalks = []struct {
	id      int
	title   string
	speaker string
	level   string
}{
	{101, "Generators: The Final Frontier", "D. Beazley", "advanced"},
	{102, "Writing Fast Python with Cython", "S. Behnel", "intermediate"},
	{103, "Packaging Without Tears", "N. Coghlan", "intermediate"},
	{104, "Testing with Property Based Strategies", "D. MacIver", "intermediate"},
	{105, "The Art of Subclassing", "R. Hettinger", "novice"},
	{106, "Async IO From the Ground Up", "Y. Selivanov", "advanced"},
	{107, "Data Pipelines That Survive Monday", "K. Reitz", "novice"},
	{108, "Debugging Memory Leaks in Production", "V. Stinner", "advanced"},
	{109, "Type Hints in Large Codebases", "G. van Rossum", "intermediate"},
	{110, "Teaching Programming to Kids", "C. Ramos", "novice"},
	{111, "Scaling Django Admin", "J. Kaplan-Moss", "intermediate"},
	{112, "Inside the CPython Bytecode Compiler", "B. Cannon", "advanced"},
}

// Demo returns a server seeded with a small review round: a dozen talks
// and two existing groups, one of them decided.
func Demo(log *zap.Logger) *Server {
	s := New(log)
	for _, t := range demoTalks {
		s.AddTalk(api.Talk{
			ID:    t.id,
			Title: t.title,
			Attrs: api.JSONMap{
				"speaker":  t.speaker,
				"level":    t.level,
				"category": "talk",
			},
		})
	}
	first := s.SeedGroup("Performance", 102, 108)
	s.SetDecided(first.Number, true)
	s.SeedGroup("Language Internals", 106, 112)
	return s
}
