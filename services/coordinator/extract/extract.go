// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package extract mines agent output for decision-like statements worth
remembering.

The scan is deliberately dumb: a fixed phrase list selects candidate
lines, a noise floor and a hard cap bound what reaches the memory
fabric, and an ordered keyword table assigns each survivor a topic
category. No model in the loop; the fabric's value comes from recall of
real decisions, and a cheap high-precision filter beats an expensive
clever one that needs its own infrastructure.
*/
package extract

import (
	"strings"
	"unicode"
)

const (
	// MaxCandidates caps how many candidates one extraction may yield.
	MaxCandidates = 5

	// MaxLength truncates candidate content, in runes.
	MaxLength = 200

	// MinLength is the noise floor: anything shorter after trimming
	// carries no reusable decision.
	MinLength = 20
)

// DecisionPhrases select candidate lines. Matching is case-insensitive
// substring; trailing spaces on some entries keep word stems like
// "chosen" from matching.
var DecisionPhrases = []string{
	"decided to",
	"decision:",
	"chose ",
	"choosing ",
	"selected ",
	"opted for",
	"going with",
	"recommends ",
	"recommend using",
	"agreed to",
	"will use",
	"instead of using",
}

// Rule is one classifier entry: a category and the keywords that claim
// it. A keyword matches when it is a prefix of any word in the text, so
// "encrypt" claims "encryption" but "api" does not claim "rapid".
type Rule struct {
	Category string
	Keywords []string
}

// Rules is the category classifier, evaluated top to bottom with first
// match wins. The order is a priority list, not alphabetical: a line
// mentioning both a database and an API is a database decision.
var Rules = []Rule{
	{Category: "security", Keywords: []string{
		"security", "vulnerab", "cve", "encrypt", "sanitiz",
		"injection", "xss", "csrf", "secret",
	}},
	{Category: "database", Keywords: []string{
		"database", "sql", "postgres", "mysql", "sqlite",
		"migration", "schema", "badger", "redis",
	}},
	{Category: "api", Keywords: []string{
		"api", "endpoint", "rest", "grpc", "graphql",
		"http", "route", "webhook",
	}},
	{Category: "authentication", Keywords: []string{
		"auth", "login", "oauth", "jwt", "token",
		"session", "credential",
	}},
	{Category: "testing", Keywords: []string{
		"test", "mock", "fixture", "coverage", "assert",
	}},
	{Category: "deployment", Keywords: []string{
		"deploy", "docker", "kubernetes", "k8s", "container",
		"helm", "rollout", "release",
	}},
	{Category: "observability", Keywords: []string{
		"logging", "metric", "trace", "telemetry", "monitor",
		"alert", "dashboard", "observab",
	}},
	{Category: "frontend", Keywords: []string{
		"frontend", "css", "react", "browser", "layout",
		"render", "component",
	}},
	{Category: "performance", Keywords: []string{
		"performance", "latency", "throughput", "cache",
		"optimiz", "benchmark", "profil",
	}},
	{Category: "ai-ml", Keywords: []string{
		"llm", "model", "embedding", "prompt", "inference",
		"vector", "neural", "training",
	}},
	{Category: "data-pipeline", Keywords: []string{
		"pipeline", "etl", "kafka", "stream", "batch",
		"ingest", "queue",
	}},
	{Category: "architecture", Keywords: []string{
		"architect", "microservice", "monolith", "refactor",
		"design", "interface", "abstraction", "coupling",
	}},
	{Category: "decision", Keywords: []string{
		"decided", "decision", "chose", "choosing",
		"selected", "opted",
	}},
}

// FallbackCategory tags candidates no rule claims.
const FallbackCategory = "pattern"

// Candidate is one extracted decision-like statement.
type Candidate struct {
	// Content is the trimmed, bounded line.
	Content string `json:"content"`

	// Category is the classifier's topic tag.
	Category string `json:"category"`
}

// Extract scans agent output for decision-like statements.
//
// # Description
//
// Splits the text into lines and keeps those containing a decision
// phrase. Each keeper is trimmed, truncated to MaxLength runes,
// dropped if shorter than MinLength, deduplicated case-insensitively,
// and classified. At most MaxCandidates survive, in input order.
//
// Callers are responsible for only feeding successful output; a failed
// run's "decisions" are exactly the ones not worth remembering.
//
// # Inputs
//
//   - text: Arbitrary agent output. May be empty.
//
// # Outputs
//
//   - []Candidate: Zero to MaxCandidates candidates.
func Extract(text string) []Candidate {
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []Candidate

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !hasDecisionPhrase(trimmed) {
			continue
		}

		trimmed = truncateRunes(trimmed, MaxLength)
		if len([]rune(trimmed)) < MinLength {
			continue
		}

		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true

		out = append(out, Candidate{
			Content:  trimmed,
			Category: Classify(trimmed),
		})
		if len(out) == MaxCandidates {
			break
		}
	}
	return out
}

// Classify assigns the first matching rule's category, or
// FallbackCategory when nothing claims the text.
func Classify(text string) string {
	words := splitWords(strings.ToLower(text))
	for _, rule := range Rules {
		for _, keyword := range rule.Keywords {
			if matchesAny(words, keyword) {
				return rule.Category
			}
		}
	}
	return FallbackCategory
}

// hasDecisionPhrase reports whether the line contains any phrase from
// the fixed set.
func hasDecisionPhrase(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range DecisionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// truncateRunes bounds s to max runes, trimming any whitespace the cut
// exposes.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}

// splitWords breaks text into alphanumeric words.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesAny reports whether keyword is a prefix of any word.
func matchesAny(words []string, keyword string) bool {
	for _, w := range words {
		if strings.HasPrefix(w, keyword) {
			return true
		}
	}
	return false
}
