package branches

import (
	"context"
	"fmt"
	"strings"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// VolvaHandler serves plausible, sourced knowledge: ledger nodes in the
// VOLVA cell (confidence 50-99) carrying at least one source.
type VolvaHandler struct {
	finder NodeFinder
}

// NewVolvaHandler builds the VOLVA handler over the ledger.
func NewVolvaHandler(finder NodeFinder) *VolvaHandler {
	return &VolvaHandler{finder: finder}
}

func (h *VolvaHandler) Branch() types.Branch { return types.BranchVolva }

// Fetch implements Handler. The returned confidence is the best matching
// node's confidence, by construction inside [50,99].
func (h *VolvaHandler) Fetch(ctx context.Context, query string, keywords []string) (*Evidence, error) {
	ids, err := h.finder.SearchStatements(ctx, searchText(query, keywords), 10)
	if err != nil {
		return nil, fmt.Errorf("volva search: %w", err)
	}

	best := 0
	var contents []string
	var sources []types.Source
	for _, id := range ids {
		node, err := h.finder.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if node.Branch != types.BranchVolva || node.State.Terminal() {
			continue
		}
		if len(node.Sources) == 0 {
			continue
		}
		contents = append(contents, node.Statement)
		sources = append(sources, node.Sources...)
		if node.Confidence > best {
			best = node.Confidence
		}
	}

	if len(contents) == 0 {
		return &Evidence{Branch: types.BranchVolva}, nil
	}
	return &Evidence{
		Branch:     types.BranchVolva,
		Content:    strings.Join(contents, "\n"),
		Confidence: best,
		Sources:    sources,
	}, nil
}

var _ Handler = (*VolvaHandler)(nil)
