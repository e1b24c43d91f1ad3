// Package detect finds disease mentions in article text by keyword.
package detect

import (
	"strings"

	"github.com/epiwatch/backend/internal/storage/models"
)

// UnknownLabel is returned by Label when a disease has no primary keyword.
const UnknownLabel = "unknown"

type keyword struct {
	needle    string
	diseaseID string
}

// KeywordIndex is an immutable snapshot of the disease keyword table.
type KeywordIndex struct {
	keywords []keyword
	labels   map[string]string
}

func NewKeywordIndex(entries []models.DiseaseKeyword) *KeywordIndex {
	idx := &KeywordIndex{
		keywords: make([]keyword, 0, len(entries)),
		labels:   make(map[string]string),
	}

	for _, e := range entries {
		needle := strings.ToLower(strings.TrimSpace(e.Keyword))
		if needle == "" || e.DiseaseID == "" {
			continue
		}
		idx.keywords = append(idx.keywords, keyword{needle: needle, diseaseID: e.DiseaseID})

		if e.Type == models.KeywordTypePrimary {
			if _, ok := idx.labels[e.DiseaseID]; !ok {
				idx.labels[e.DiseaseID] = e.Keyword
			}
		}
	}

	return idx
}

func (idx *KeywordIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.keywords)
}

// Label returns the primary keyword of a disease.
func (idx *KeywordIndex) Label(diseaseID string) string {
	if idx != nil {
		if label, ok := idx.labels[diseaseID]; ok {
			return label
		}
	}
	return UnknownLabel
}

// Labels maps Label over ids.
func (idx *KeywordIndex) Labels(diseaseIDs []string) []string {
	out := make([]string, 0, len(diseaseIDs))
	for _, id := range diseaseIDs {
		out = append(out, idx.Label(id))
	}
	return out
}

// Detect returns the ids of every disease with at least one keyword occurring
// in title or content. Ids appear once, in the order of their first matching
// keyword in the index.
func Detect(title, content string, idx *KeywordIndex) []string {
	if idx == nil || len(idx.keywords) == 0 {
		return nil
	}

	text := strings.ToLower(title + " " + content)

	var matched []string
	seen := make(map[string]struct{})
	for _, kw := range idx.keywords {
		if _, ok := seen[kw.diseaseID]; ok {
			continue
		}
		if strings.Contains(text, kw.needle) {
			seen[kw.diseaseID] = struct{}{}
			matched = append(matched, kw.diseaseID)
		}
	}

	return matched
}
