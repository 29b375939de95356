package branches

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/disinfo"
)

// WebSearcher fetches raw web snippets for a query. External collaborator
// behind a narrow interface.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]WebSnippet, error)
}

// WebSnippet is one raw search hit.
type WebSnippet struct {
	URL         string
	Title       string
	Content     string
	PublishedAt *time.Time
}

const (
	huginSnippetLimit    = 8
	huginChunkSize       = 512
	huginChunkOverlap    = 64
	huginConfidenceCeil  = 49
	huginTrustDivisor    = 2
)

// HuginHandler fetches unverified web evidence. Every snippet is chunked
// and pushed through the disinformation filter; blocked chunks are dropped
// and the surviving ones are assembled into low-confidence evidence, never
// above the HUGIN ceiling of 49.
type HuginHandler struct {
	searcher WebSearcher
	filter   *disinfo.Filter
	splitter textsplitter.TextSplitter
}

// NewHuginHandler builds the HUGIN handler.
func NewHuginHandler(searcher WebSearcher, filter *disinfo.Filter) *HuginHandler {
	return &HuginHandler{
		searcher: searcher,
		filter:   filter,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(huginChunkSize),
			textsplitter.WithChunkOverlap(huginChunkOverlap),
		),
	}
}

func (h *HuginHandler) Branch() types.Branch { return types.BranchHugin }

// Fetch implements Handler.
func (h *HuginHandler) Fetch(ctx context.Context, query string, keywords []string) (*Evidence, error) {
	snippets, err := h.searcher.Search(ctx, query, huginSnippetLimit)
	if err != nil {
		return nil, fmt.Errorf("hugin web search: %w", err)
	}
	if len(snippets) == 0 {
		return &Evidence{Branch: types.BranchHugin}, nil
	}

	var contents []string
	var sources []types.Source
	riskSum, scored := 0, 0

	for _, snippet := range snippets {
		chunks, err := h.splitter.SplitText(snippet.Content)
		if err != nil || len(chunks) == 0 {
			chunks = []string{snippet.Content}
		}

		var meta *disinfo.Metadata
		if snippet.PublishedAt != nil {
			meta = &disinfo.Metadata{PublishedAt: snippet.PublishedAt}
		}

		accepted := false
		worstRisk := 0
		for _, chunk := range chunks {
			report := h.filter.Analyze(snippet.URL, chunk, meta)
			if report.RiskScore > worstRisk {
				worstRisk = report.RiskScore
			}
			if report.Recommendation == disinfo.RecommendBlock {
				continue
			}
			contents = append(contents, chunk)
			accepted = true
		}
		if !accepted {
			continue
		}

		riskSum += worstRisk
		scored++
		sources = append(sources, types.Source{
			ID:          uuid.NewString(),
			Type:        types.SourceWeb,
			Identifier:  snippet.URL,
			URL:         snippet.URL,
			Title:       snippet.Title,
			TrustScore:  (100 - worstRisk) / huginTrustDivisor,
			RetrievedAt: time.Now(),
		})
	}

	if scored == 0 {
		return &Evidence{Branch: types.BranchHugin}, nil
	}

	avgRisk := riskSum / scored
	confidence := (100 - avgRisk) / 2
	if confidence > huginConfidenceCeil {
		confidence = huginConfidenceCeil
	}

	return &Evidence{
		Branch:     types.BranchHugin,
		Content:    strings.Join(contents, "\n"),
		Confidence: confidence,
		Sources:    sources,
	}, nil
}

var _ Handler = (*HuginHandler)(nil)
