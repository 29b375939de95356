package branches

import (
	"context"
	"fmt"
	"strings"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// validatedProviders are the source types MIMIR accepts as proof.
var validatedProviders = map[types.SourceType]struct{}{
	types.SourceArxiv:  {},
	types.SourcePubmed: {},
}

// MimirHandler serves verified knowledge. It only returns entries backed by
// a fully trusted source (trust 100) from a validated provider, and always
// at confidence 100.
type MimirHandler struct {
	finder NodeFinder
}

// NewMimirHandler builds the MIMIR handler over the ledger.
func NewMimirHandler(finder NodeFinder) *MimirHandler {
	return &MimirHandler{finder: finder}
}

func (h *MimirHandler) Branch() types.Branch { return types.BranchMimir }

// Fetch implements Handler.
func (h *MimirHandler) Fetch(ctx context.Context, query string, keywords []string) (*Evidence, error) {
	ids, err := h.finder.SearchStatements(ctx, searchText(query, keywords), 10)
	if err != nil {
		return nil, fmt.Errorf("mimir search: %w", err)
	}

	var contents []string
	var sources []types.Source
	for _, id := range ids {
		node, err := h.finder.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if node.State != types.StateVerified || node.Branch != types.BranchMimir {
			continue
		}
		anchors := validatedAnchors(node.Sources)
		if len(anchors) == 0 {
			continue
		}
		contents = append(contents, node.Statement)
		sources = append(sources, anchors...)
	}

	if len(contents) == 0 {
		return &Evidence{Branch: types.BranchMimir}, nil
	}
	return &Evidence{
		Branch:     types.BranchMimir,
		Content:    strings.Join(contents, "\n"),
		Confidence: 100,
		Sources:    sources,
	}, nil
}

// validatedAnchors keeps only fully trusted sources from validated
// providers.
func validatedAnchors(sources []types.Source) []types.Source {
	var out []types.Source
	for _, s := range sources {
		if s.TrustScore != 100 {
			continue
		}
		if _, ok := validatedProviders[s.Type]; !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func searchText(query string, keywords []string) string {
	if len(keywords) > 0 {
		return strings.Join(keywords, " ")
	}
	return query
}

var _ Handler = (*MimirHandler)(nil)
