// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"testing"
)

// TestClassify_Conversational_ShortCircuitsVerification tests that small
// talk never enters the verification pipeline.
func TestClassify_Conversational_ShortCircuitsVerification(t *testing.T) {
	for _, q := range []string{"Hello there", "oi, tudo bem?", "thanks a lot"} {
		c := Classify(q)
		if c.Type != TypeConversational {
			t.Errorf("Classify(%q).Type = %s, want conversational", q, c.Type)
		}
		if c.RequiresVerification {
			t.Errorf("Classify(%q) should not require verification", q)
		}
	}
}

// TestClassify_Factual_ScienceDomain tests the canonical factual query.
func TestClassify_Factual_ScienceDomain(t *testing.T) {
	c := Classify("What is the speed of light in vacuum?")

	if c.Type != TypeFactual {
		t.Errorf("Type = %s, want factual", c.Type)
	}
	if c.Domain != DomainScience {
		t.Errorf("Domain = %s, want science", c.Domain)
	}
	if !c.RequiresVerification {
		t.Error("factual query should require verification")
	}
}

// TestClassify_Portuguese_Factual tests the Portuguese half of the catalog.
func TestClassify_Portuguese_Factual(t *testing.T) {
	c := Classify("Qual é a velocidade da luz?")

	if c.Type != TypeFactual {
		t.Errorf("Type = %s, want factual", c.Type)
	}
	if c.Domain != DomainScience {
		t.Errorf("Domain = %s, want science", c.Domain)
	}
}

// TestClassify_CurrentEvents_RequiresRealtime tests realtime flagging.
func TestClassify_CurrentEvents_RequiresRealtime(t *testing.T) {
	c := Classify("What is the latest news on the election today?")

	if c.Type != TypeCurrentEvents {
		t.Errorf("Type = %s, want current_events", c.Type)
	}
	if !c.RequiresRealtime {
		t.Error("current events should require realtime")
	}
}

// TestClassify_Creative_SkipsVerification tests that creative requests do
// not demand sources.
func TestClassify_Creative_SkipsVerification(t *testing.T) {
	c := Classify("Write a poem about the northern lights")

	if c.Type != TypeCreative {
		t.Errorf("Type = %s, want creative", c.Type)
	}
	if c.RequiresVerification {
		t.Error("creative query should not require verification")
	}
}

// TestClassify_Controversial_FlagsMultipleSources tests the controversy
// escalation path.
func TestClassify_Controversial_FlagsMultipleSources(t *testing.T) {
	c := Classify("Is the flat earth conspiracy real?")

	if !c.Controversial {
		t.Error("expected controversial flag")
	}
	if !c.RequiresMultipleSources {
		t.Error("controversial queries require multiple sources")
	}
}

// TestClassify_Complexity_Boundaries tests complexity derivation from word
// count and clause markers.
func TestClassify_Complexity_Boundaries(t *testing.T) {
	tests := []struct {
		query string
		want  Complexity
	}{
		{"speed of light", ComplexitySimple},
		{"what happens to water pressure when a diver descends deeper", ComplexityModerate},
		{"if quantum computers become practical, and if current encryption fails because of them, " +
			"how should banks respond, and what alternatives exist, although migration is costly?", ComplexityComplex},
	}
	for _, tt := range tests {
		c := Classify(tt.query)
		if c.Complexity != tt.want {
			t.Errorf("Classify(%q).Complexity = %s, want %s", tt.query, c.Complexity, tt.want)
		}
	}
}

// TestExtractKeywords_StopwordsAndLength tests keyword token rules:
// lowercased, alphanumeric, no stopwords, length > 2, deduplicated.
func TestExtractKeywords_StopwordsAndLength(t *testing.T) {
	kws := extractKeywords("what is the speed of light, the speed!")

	want := map[string]bool{"speed": true, "light": true}
	if len(kws) != len(want) {
		t.Fatalf("keywords = %v, want exactly %v", kws, want)
	}
	for _, k := range kws {
		if !want[k] {
			t.Errorf("unexpected keyword %q", k)
		}
	}
}

// TestClassify_Unknown_LowConfidence tests the fallback bucket.
func TestClassify_Unknown_LowConfidence(t *testing.T) {
	c := Classify("zzz qqq xxyy")

	if c.Type != TypeUnknown {
		t.Errorf("Type = %s, want unknown", c.Type)
	}
	if c.Confidence >= 50 {
		t.Errorf("Confidence = %d, want < 50 for unknown", c.Confidence)
	}
}
