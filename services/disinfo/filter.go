// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package disinfo scores unverified web content for disinformation risk.
//
// The filter runs layered analysis (source reputation, content patterns,
// claim style, scientific consensus, temporal recycling) and produces an
// additive risk score capped at 100, a severity grade, and a handling
// recommendation. HUGIN passes every fetched snippet through it before the
// snippet may enter the ledger.
package disinfo

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// =============================================================================
// Report Types
// =============================================================================

// DetectedType classifies a disinformation signal family.
type DetectedType string

const (
	TypeFabricatedContent     DetectedType = "FABRICATED_CONTENT"
	TypeSatireAsNews          DetectedType = "SATIRE_AS_NEWS"
	TypeEmotionalManipulation DetectedType = "EMOTIONAL_MANIPULATION"
	TypeConspiracyTheory      DetectedType = "CONSPIRACY_THEORY"
	TypeMisleadingAttribution DetectedType = "MISLEADING_ATTRIBUTION"
	TypeClickbait             DetectedType = "CLICKBAIT"
	TypeScientificMisinfo     DetectedType = "SCIENTIFIC_MISINFORMATION"
	TypeOutdatedContent       DetectedType = "OUTDATED_CONTENT"
)

// Recommendation is the handling advice for a scored item.
type Recommendation string

const (
	RecommendAccept Recommendation = "ACCEPT"
	RecommendReview Recommendation = "REVIEW"
	RecommendFlag   Recommendation = "FLAG"
	RecommendBlock  Recommendation = "BLOCK"
)

// Metadata carries optional context about the analyzed content.
type Metadata struct {
	PublishedAt *time.Time
	Author      string
}

// Report is the filter's full output for one (url, content) pair.
type Report struct {
	RiskScore      int            `json:"riskScore"`
	DetectedTypes  []DetectedType `json:"detectedTypes"`
	Severity       types.Severity `json:"severity"`
	Indicators     []string       `json:"indicators"`
	Recommendation Recommendation `json:"recommendation"`
	Explanation    string         `json:"explanation"`
	Confidence     int            `json:"confidence"`
}

// =============================================================================
// Filter
// =============================================================================

// Filter is the multi-signal disinformation scorer. Construct once and share;
// it is stateless after initialization and safe for concurrent use.
type Filter struct {
	domains *domainSets
}

// NewFilter loads the embedded domain catalogs and returns a ready filter.
func NewFilter() (*Filter, error) {
	sets, err := loadDomainSets()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize disinformation filter: %w", err)
	}
	return &Filter{domains: sets}, nil
}

// scoring weights, additive with a hard cap at 100
const (
	weightKnownDisinfo  = 50
	weightSatire        = 30
	weightSuspicious    = 15
	weightCapsRatio     = 10
	weightExclamation   = 8
	weightAbsoluteClaim = 15
	weightUrgency       = 12
	weightConsensus     = 35
	weightRecycled      = 25

	capsRatioThreshold   = 0.15
	exclamationThreshold = 0.3
	staleAfter           = 365 * 24 * time.Hour
)

// Analyze scores one piece of content. The URL drives the source layer;
// metadata is optional and only feeds the temporal layer.
func (f *Filter) Analyze(rawURL, content string, meta *Metadata) Report {
	score := 0
	var detected []DetectedType
	var indicators []string

	addType := func(t DetectedType) {
		for _, existing := range detected {
			if existing == t {
				return
			}
		}
		detected = append(detected, t)
	}

	// Layer 1: source reputation
	knownDisinfo := f.domains.isKnownDisinfo(rawURL)
	factChecker := f.domains.isFactChecker(rawURL)
	if knownDisinfo {
		score += weightKnownDisinfo
		addType(TypeFabricatedContent)
		indicators = append(indicators, "KNOWN_DISINFO_DOMAIN")
	}
	if f.domains.isSatire(rawURL) {
		score += weightSatire
		addType(TypeSatireAsNews)
		indicators = append(indicators, "SATIRE_SOURCE")
	}
	if f.domains.matchesSuspicious(rawURL) {
		score += weightSuspicious
		indicators = append(indicators, "SUSPICIOUS_DOMAIN_PATTERN")
	}

	// Layer 2: content patterns
	if n := countMatches(emotionalPatterns, content); n > 0 {
		score += min(5*n, 25)
		addType(TypeEmotionalManipulation)
		indicators = append(indicators, fmt.Sprintf("EMOTIONAL_LANGUAGE:%d", n))
	}
	if n := countMatches(conspiracyPatterns, content); n > 0 {
		score += min(10*n, 40)
		addType(TypeConspiracyTheory)
		indicators = append(indicators, fmt.Sprintf("CONSPIRACY_MARKERS:%d", n))
	}
	if n := countMatches(vagueAttributionPatterns, content); n > 2 {
		score += min(3*n, 15)
		addType(TypeMisleadingAttribution)
		indicators = append(indicators, fmt.Sprintf("VAGUE_ATTRIBUTION:%d", n))
	}
	if ratio := capsRatio(content); ratio > capsRatioThreshold {
		score += weightCapsRatio
		addType(TypeClickbait)
		indicators = append(indicators, "EXCESSIVE_CAPS")
	}
	if ratio := exclamationsPerSentence(content); ratio > exclamationThreshold {
		score += weightExclamation
		addType(TypeClickbait)
		indicators = append(indicators, "EXCESSIVE_EXCLAMATION")
	}

	// Layer 3: claim style
	if countMatches(absoluteClaimPatterns, content) > 0 {
		score += weightAbsoluteClaim
		indicators = append(indicators, "ABSOLUTE_CLAIMS")
	}
	if countMatches(urgencyPatterns, content) > 0 {
		score += weightUrgency
		indicators = append(indicators, "ARTIFICIAL_URGENCY")
	}

	// Layer 4: scientific consensus
	for _, topic := range consensusTopics {
		if countMatches(topic.patterns, content) > 0 {
			score += weightConsensus
			addType(TypeScientificMisinfo)
			indicators = append(indicators, "CONTRADICTS_CONSENSUS:"+topic.topic)
		}
	}

	// Layer 5: temporal recycling
	if meta != nil && meta.PublishedAt != nil &&
		time.Since(*meta.PublishedAt) > staleAfter &&
		countMatches(presentTimePatterns, content) > 0 {
		score += weightRecycled
		addType(TypeOutdatedContent)
		indicators = append(indicators, "RECYCLED_CONTENT")
	}

	if score > 100 {
		score = 100
	}

	severity := deriveSeverity(score, detected)
	recommendation := deriveRecommendation(severity, knownDisinfo, factChecker)

	return Report{
		RiskScore:      score,
		DetectedTypes:  detected,
		Severity:       severity,
		Indicators:     indicators,
		Recommendation: recommendation,
		Explanation:    buildExplanation(score, detected, indicators),
		Confidence:     min(50+10*len(indicators), 95),
	}
}

// deriveSeverity applies the forcing rule (fabrication and scientific
// misinformation are always CRITICAL) and the score thresholds otherwise.
func deriveSeverity(score int, detected []DetectedType) types.Severity {
	for _, t := range detected {
		if t == TypeFabricatedContent || t == TypeScientificMisinfo {
			return types.SeverityCritical
		}
	}
	switch {
	case score >= 70:
		return types.SeverityCritical
	case score >= 45:
		return types.SeverityHigh
	case score >= 25:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func deriveRecommendation(severity types.Severity, knownDisinfo, factChecker bool) Recommendation {
	if knownDisinfo {
		return RecommendBlock
	}
	if factChecker {
		return RecommendAccept
	}
	switch severity {
	case types.SeverityCritical:
		return RecommendBlock
	case types.SeverityHigh:
		return RecommendFlag
	case types.SeverityMedium:
		return RecommendReview
	default:
		return RecommendAccept
	}
}

func buildExplanation(score int, detected []DetectedType, indicators []string) string {
	if len(indicators) == 0 {
		return "no disinformation signals detected"
	}
	names := make([]string, 0, len(detected))
	for _, t := range detected {
		names = append(names, string(t))
	}
	return fmt.Sprintf("risk %d from %d signals (%s)", score, len(indicators), strings.Join(names, ", "))
}

func capsRatio(content string) float64 {
	letters, upper := 0, 0
	for _, r := range content {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func exclamationsPerSentence(content string) float64 {
	exclamations := strings.Count(content, "!")
	sentences := 0
	for _, r := range content {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}
	return float64(exclamations) / float64(sentences)
}
