package ingestion

import "strings"

// DedupGuard rejects repeated URLs within one batch. Cross-batch repeats are
// handled by the article upsert.
type DedupGuard struct {
	seen map[string]struct{}
}

func NewDedupGuard() *DedupGuard {
	return &DedupGuard{seen: make(map[string]struct{})}
}

// Admit records url and reports whether it is new. Empty URLs are never
// admitted.
func (g *DedupGuard) Admit(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	if _, ok := g.seen[url]; ok {
		return false
	}
	g.seen[url] = struct{}{}
	return true
}
