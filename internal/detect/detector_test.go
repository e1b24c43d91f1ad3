package detect

import (
	"reflect"
	"testing"

	"github.com/epiwatch/backend/internal/storage/models"
)

func testIndex() *KeywordIndex {
	return NewKeywordIndex([]models.DiseaseKeyword{
		{Keyword: "cholera", DiseaseID: "D-cholera", Weight: 1, Type: models.KeywordTypePrimary},
		{Keyword: "Vibrio cholerae", DiseaseID: "D-cholera", Weight: 0.8, Type: "synonym"},
		{Keyword: "measles", DiseaseID: "D-measles", Weight: 1, Type: models.KeywordTypePrimary},
		{Keyword: "rubeola", DiseaseID: "D-measles", Weight: 0.5, Type: "synonym"},
		{Keyword: "marburg", DiseaseID: "D-marburg", Weight: 1, Type: "synonym"},
	})
}

func TestDetect(t *testing.T) {
	idx := testIndex()

	tests := []struct {
		name    string
		title   string
		content string
		want    []string
	}{
		{"title match", "Cholera outbreak reported in Hodeidah, Yemen", "", []string{"D-cholera"}},
		{"case insensitive synonym", "", "Lab confirmed VIBRIO CHOLERAE in samples", []string{"D-cholera"}},
		{"multiple diseases", "Measles and cholera", "rubeola cases rising", []string{"D-cholera", "D-measles"}},
		{"no match", "Flood warning", "Heavy rain expected", nil},
		{"substring inside word", "Anticholeraic campaign", "", []string{"D-cholera"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.title, tt.content, idx)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectDoesNotJoinTitleAndContent(t *testing.T) {
	idx := NewKeywordIndex([]models.DiseaseKeyword{{Keyword: "bird flu", DiseaseID: "D-h5n1", Type: models.KeywordTypePrimary}})
	if got := Detect("bird", "flu", idx); len(got) != 1 {
		t.Fatalf("title and content are joined with a space, expected match, got %v", got)
	}
	if got := Detect("bir", "d flu", idx); len(got) != 0 {
		t.Fatalf("expected no match across the separator, got %v", got)
	}
}

func TestDetectEmptyIndex(t *testing.T) {
	if got := Detect("cholera", "", NewKeywordIndex(nil)); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := Detect("cholera", "", nil); got != nil {
		t.Fatalf("expected nil for nil index, got %v", got)
	}
}

func TestLabel(t *testing.T) {
	idx := testIndex()

	if got := idx.Label("D-cholera"); got != "cholera" {
		t.Errorf("Label(D-cholera) = %q", got)
	}
	if got := idx.Label("D-marburg"); got != UnknownLabel {
		t.Errorf("disease without primary keyword should be %q, got %q", UnknownLabel, got)
	}
	if got := idx.Label("D-missing"); got != UnknownLabel {
		t.Errorf("missing disease should be %q, got %q", UnknownLabel, got)
	}

	got := idx.Labels([]string{"D-measles", "D-marburg"})
	if !reflect.DeepEqual(got, []string{"measles", "unknown"}) {
		t.Errorf("Labels() = %v", got)
	}
}
