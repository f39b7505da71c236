package fragment

import (
	"fmt"

	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/store"

	"github.com/google/uuid"
)

// Relevance maps a backend distance to (0, 1]. Negative distances are treated as 0.
func Relevance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// FromSources builds display fragments in backend order, indexed from 1.
// No re-sorting is applied, so equal relevance keeps the backend's order.
func FromSources(sources []gateway.Source) []store.DocumentFragment {
	fragments := make([]store.DocumentFragment, 0, len(sources))
	batch := uuid.NewString()
	for i, src := range sources {
		fragments = append(fragments, store.DocumentFragment{
			ID:        fmt.Sprintf("%s-%d", batch, i),
			Content:   src.Content,
			Relevance: Relevance(src.Score),
			Index:     i + 1,
		})
	}
	return fragments
}
