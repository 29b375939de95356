// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package similarity backs node-similarity lookups with Weaviate. Embeddings
// stay opaque: the vectorizer module computes them, this package only ships
// statements in and reads neighbors out. The whole package is optional; a
// nil *Index degrades every call to a no-op.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

const className = "KnowledgeNode"

// Neighbor is one similarity hit.
type Neighbor struct {
	NodeID    string  `json:"nodeId"`
	Statement string  `json:"statement"`
	Certainty float64 `json:"certainty"`
}

// Index is the Weaviate-backed similarity collaborator.
type Index struct {
	client *weaviate.Client
}

// New connects to Weaviate and ensures the node class exists. An empty URL
// returns (nil, nil): similarity is simply disabled.
func New(rawURL string) (*Index, error) {
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" {
		slog.Info("Weaviate URL not configured, similarity lookups disabled")
		return nil, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL %q", rawURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	idx := &Index{client: client}
	if err := idx.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	slog.Info("Weaviate similarity index initialized", "url", rawURL)
	return idx, nil
}

func (i *Index) ensureSchema(ctx context.Context) error {
	if _, err := i.client.Schema().ClassGetter().WithClassName(className).Do(ctx); err == nil {
		return nil
	}

	class := &models.Class{
		Class:       className,
		Description: "Knowledge ledger statements for similarity lookup",
		Properties: []*models.Property{
			{Name: "statement", DataType: []string{"text"}},
			{Name: "branch", DataType: []string{"text"}},
			{Name: "state", DataType: []string{"text"}},
		},
	}
	if err := i.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class: %w", err)
	}
	return nil
}

// IndexNode upserts one node's statement. Nil receiver is a no-op.
func (i *Index) IndexNode(ctx context.Context, node *types.KnowledgeNode) error {
	if i == nil {
		return nil
	}
	_ = i.client.Data().Deleter().WithClassName(className).WithID(node.ID).Do(ctx)
	_, err := i.client.Data().Creator().
		WithClassName(className).
		WithID(node.ID).
		WithProperties(map[string]any{
			"statement": node.Statement,
			"branch":    string(node.Branch),
			"state":     string(node.State),
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("index node %s: %w", node.ID, err)
	}
	return nil
}

// Similar returns the closest statements to the given text. Nil receiver
// returns no neighbors.
func (i *Index) Similar(ctx context.Context, text string, limit int) ([]Neighbor, error) {
	if i == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	nearText := i.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{text})
	fields := []graphql.Field{
		{Name: "statement"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}

	result, err := i.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("similarity query: %s", result.Errors[0].Message)
	}

	return parseNeighbors(result.Data), nil
}

func parseNeighbors(data map[string]models.JSONObject) []Neighbor {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	items, ok := get[className].([]any)
	if !ok {
		return nil
	}

	var out []Neighbor
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		n := Neighbor{}
		if s, ok := obj["statement"].(string); ok {
			n.Statement = s
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			if id, ok := add["id"].(string); ok {
				n.NodeID = id
			}
			if c, ok := add["certainty"].(float64); ok {
				n.Certainty = c
			}
		}
		out = append(out, n)
	}
	return out
}
