// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package branches fetches sourced evidence per epistemic branch. Each
// handler owns exactly one branch and can only emit evidence inside that
// branch's confidence cell; the separate fetch paths are what keep the
// branches from contaminating each other.
package branches

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// Evidence is one branch's contribution to a query.
type Evidence struct {
	Branch     types.Branch   `json:"branch"`
	Content    string         `json:"content"`
	Confidence int            `json:"confidence"`
	Sources    []types.Source `json:"sources"`
}

// Empty reports whether the branch found nothing.
func (e *Evidence) Empty() bool {
	return e == nil || (e.Content == "" && len(e.Sources) == 0)
}

// Handler fetches evidence for its branch.
type Handler interface {
	Branch() types.Branch
	Fetch(ctx context.Context, query string, keywords []string) (*Evidence, error)
}

// NodeFinder is the slice of the ledger the read-side handlers need.
type NodeFinder interface {
	SearchStatements(ctx context.Context, query string, limit int) ([]string, error)
	GetNode(ctx context.Context, id string) (*types.KnowledgeNode, error)
}

// FanOut runs every handler concurrently and joins their outputs, keyed by
// branch. A handler error degrades that branch to an empty evidence set;
// the fan-out itself only fails on context cancellation.
func FanOut(ctx context.Context, handlers []Handler, query string, keywords []string) (map[types.Branch]*Evidence, error) {
	results := make([]*Evidence, len(handlers))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handlers {
		g.Go(func() error {
			evidence, err := h.Fetch(gctx, query, keywords)
			if err != nil {
				slog.Warn("branch fetch failed, treating as empty evidence",
					"branch", h.Branch(), "error", err)
				return nil
			}
			results[i] = evidence
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[types.Branch]*Evidence, len(handlers))
	for i, h := range handlers {
		if results[i] != nil && !results[i].Empty() {
			// A handler may never emit outside its own branch cell.
			if !h.Branch().Allows(results[i].Confidence) {
				slog.Error("branch handler emitted out-of-cell confidence, dropping",
					"branch", h.Branch(), "confidence", results[i].Confidence)
				continue
			}
			out[h.Branch()] = results[i]
		}
	}
	return out, nil
}
