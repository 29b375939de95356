// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier turns a raw user query into routing hints for the
// pipeline: query type, domain, complexity, and the verification flags the
// branch handlers and validator act on.
//
// Classification is a pure function over the query text. The pattern catalog
// is bilingual (English and Portuguese); conversational queries are tested
// first and short-circuit verification entirely.
package classifier

import (
	"regexp"
	"strings"
	"unicode"
)

// QueryType buckets the intent of a query.
type QueryType string

const (
	TypeFactual        QueryType = "factual"
	TypeResearch       QueryType = "research"
	TypeTheoretical    QueryType = "theoretical"
	TypeCreative       QueryType = "creative"
	TypeCurrentEvents  QueryType = "current_events"
	TypeProcedural     QueryType = "procedural"
	TypeConversational QueryType = "conversational"
	TypeUnknown        QueryType = "unknown"
)

// Domain buckets the subject area of a query.
type Domain string

const (
	DomainScience     Domain = "science"
	DomainMathematics Domain = "mathematics"
	DomainHistory     Domain = "history"
	DomainTechnology  Domain = "technology"
	DomainMedicine    Domain = "medicine"
	DomainLaw         Domain = "law"
	DomainPhilosophy  Domain = "philosophy"
	DomainCreative    Domain = "creative"
	DomainLogic       Domain = "logic"
	DomainGeneral     Domain = "general"
	DomainUnknown     Domain = "unknown"
)

// Complexity grades how much deliberation a query needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Classification is the classifier's full output.
type Classification struct {
	Type                    QueryType  `json:"type"`
	Domain                  Domain     `json:"domain"`
	Complexity              Complexity `json:"complexity"`
	RequiresVerification    bool       `json:"requiresVerification"`
	RequiresRealtime        bool       `json:"requiresRealtime"`
	RequiresMultipleSources bool       `json:"requiresMultipleSources"`
	Controversial           bool       `json:"controversial"`
	Keywords                []string   `json:"keywords"`
	Confidence              int        `json:"confidence"`
}

// Classify analyzes a query and returns routing hints.
//
// Conversational patterns are checked first: a greeting or small talk never
// enters the verification pipeline. Everything else is matched against the
// bilingual type and domain catalogs; the first catalog hit wins, unknown
// otherwise.
func Classify(query string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(query))

	c := Classification{
		Type:       TypeUnknown,
		Domain:     DomainUnknown,
		Complexity: deriveComplexity(normalized),
		Keywords:   extractKeywords(normalized),
		Confidence: 50,
	}

	if matchAny(conversationalPatterns, normalized) {
		c.Type = TypeConversational
		c.Domain = DomainGeneral
		c.RequiresVerification = false
		c.Confidence = 90
		return c
	}

	for _, tp := range typePatterns {
		if matchAny(tp.patterns, normalized) {
			c.Type = tp.queryType
			c.Confidence = 80
			break
		}
	}

	for _, dp := range domainPatterns {
		if matchAny(dp.patterns, normalized) {
			c.Domain = dp.domain
			break
		}
	}
	if c.Domain == DomainUnknown && c.Type != TypeUnknown {
		c.Domain = DomainGeneral
	}

	c.RequiresVerification = c.Type != TypeCreative
	c.RequiresRealtime = c.Type == TypeCurrentEvents
	c.Controversial = matchAny(controversialPatterns, normalized)
	c.RequiresMultipleSources = c.Controversial ||
		c.Type == TypeResearch || c.Complexity == ComplexityComplex

	if c.Type == TypeUnknown {
		c.Confidence = 40
	}

	return c
}

// deriveComplexity grades a query from its word count plus clause and
// conditional markers.
func deriveComplexity(query string) Complexity {
	words := len(strings.Fields(query))
	markers := clauseMarkers.FindAllString(query, -1)
	score := words + 5*len(markers)

	switch {
	case score <= 8:
		return ComplexitySimple
	case score <= 25:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// extractKeywords returns the lowercased alphanumeric tokens of the query,
// minus stopwords, keeping only tokens longer than two runes.
func extractKeywords(query string) []string {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	keywords := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
