// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package disinfo

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed domains.yaml
var domainCatalogYAML []byte

// domainCatalog holds the reputation lists shipped with the filter.
type domainCatalog struct {
	KnownDisinfo       []string `yaml:"known_disinfo"`
	Satire             []string `yaml:"satire"`
	FactCheckers       []string `yaml:"fact_checkers"`
	SuspiciousPatterns []string `yaml:"suspicious_patterns"`
}

type domainSets struct {
	knownDisinfo map[string]struct{}
	satire       map[string]struct{}
	factCheckers map[string]struct{}
	suspicious   []string
}

func loadDomainSets() (*domainSets, error) {
	var catalog domainCatalog
	if err := yaml.Unmarshal(domainCatalogYAML, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse embedded domain catalog: %w", err)
	}

	return &domainSets{
		knownDisinfo: toSet(catalog.KnownDisinfo),
		satire:       toSet(catalog.Satire),
		factCheckers: toSet(catalog.FactCheckers),
		suspicious:   catalog.SuspiciousPatterns,
	}, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(strings.TrimSpace(item))] = struct{}{}
	}
	return set
}

// normalizeHost extracts the registrable hostname from a raw URL, stripping
// scheme, port, and a leading www.
func normalizeHost(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// contains checks set membership for a host, also matching catalog entries
// that carry a path component (e.g. "reuters.com/fact-check").
func (d *domainSets) contains(set map[string]struct{}, rawURL string) bool {
	host := normalizeHost(rawURL)
	if host == "" {
		return false
	}
	if _, ok := set[host]; ok {
		return true
	}
	lower := strings.ToLower(rawURL)
	for entry := range set {
		if strings.Contains(entry, "/") && strings.Contains(lower, entry) {
			return true
		}
	}
	return false
}

func (d *domainSets) isKnownDisinfo(rawURL string) bool { return d.contains(d.knownDisinfo, rawURL) }
func (d *domainSets) isSatire(rawURL string) bool       { return d.contains(d.satire, rawURL) }
func (d *domainSets) isFactChecker(rawURL string) bool  { return d.contains(d.factCheckers, rawURL) }

func (d *domainSets) matchesSuspicious(rawURL string) bool {
	host := normalizeHost(rawURL)
	if host == "" {
		return false
	}
	for _, pattern := range d.suspicious {
		if strings.Contains(host, pattern) {
			return true
		}
	}
	return false
}
