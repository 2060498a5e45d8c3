package parser

import (
	"reflect"
	"testing"

	"paper-rag/internal/models"
)

func TestDetectSections_NumberedHeadings(t *testing.T) {
	text := "1 Introduction\nwe study translation.\n2 Background\nprior work is reviewed.\n3 Experiments\nwe run things."
	got := DetectSections(text)
	want := []string{"1 Introduction", "2 Background", "3 Experiments"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDetectSections_SubHeadings(t *testing.T) {
	got := DetectSections("3 Architecture\nlayers are stacked.\n3.2 Attention\nqueries and keys.")
	if !contains(got, "3 Architecture") || !contains(got, "3.2 Attention") {
		t.Errorf("missing headings in %q", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("not sorted and unique: %q", got)
		}
	}
}

func TestDetectSections_LengthBounds(t *testing.T) {
	// "1 Abc" is five runes and rejected; "2 Abcd" is six and kept
	got := DetectSections("1 Abc\nbody\n2 Abcd\nbody")
	want := []string{"2 Abcd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDetectSections_KeywordFallback(t *testing.T) {
	text := "Attention Is All You Need\nAbstract\nThe dominant sequence models are complex.\nIntroduction to the problem\nabstract thoughts appear again"
	got := DetectSections(text)
	want := []string{
		"Abstract",
		"Introduction to the problem",
		"The dominant sequence models are complex.",
		"Attention Is All You Need",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDetectSections_Nothing(t *testing.T) {
	if got := DetectSections("the quick brown fox\njumps over the lazy dog"); len(got) != 0 {
		t.Errorf("expected no sections, got %q", got)
	}
}

func TestAssignSection(t *testing.T) {
	known := []string{"1 Introduction", "2 Background", "3 Experiments"}

	tests := []struct {
		name    string
		text    string
		current string
		want    string
	}{
		{"exact line", "tail of intro\n2 Background\nmore text", "1 Introduction", "2 Background"},
		{"earliest substring", "as shown in 3 experiments and 2 background", "1 Introduction", "3 Experiments"},
		{"inherit", "plain body text", "2 Background", "2 Background"},
		{"inherit default", "plain body text", models.DefaultSectionTitle, models.DefaultSectionTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssignSection(tt.text, known, tt.current); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssignSection_TiePrefersLonger(t *testing.T) {
	known := []string{"2 Back", "2 Background"}
	if got := AssignSection("see 2 background here", known, "x"); got != "2 Background" {
		t.Errorf("got %q", got)
	}
}

func TestPageTitle(t *testing.T) {
	if got := PageTitle("Abstract\nsome body"); got != "Abstract" {
		t.Errorf("got %q", got)
	}
	if got := PageTitle("lorem\nipsum\ndolor\nIntroduction is on line four"); got != models.ContentLabel {
		t.Errorf("only the first three lines count, got %q", got)
	}
	if got := PageTitle("Model"); got != models.ContentLabel {
		t.Errorf("short lines are not titles, got %q", got)
	}
}

func TestPageBody(t *testing.T) {
	known := []string{"1 Introduction", "2 Related", "3.2 Scaled"}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"exact heading", "1 Introduction\nbody line", "body line"},
		{"heading only", "1 Introduction", ""},
		{"multi-word heading only", "2 Related Work", ""},
		{"multi-word heading", "2 Related Work\nprior systems", "prior systems"},
		{"sub-numbered heading", "3.2 Scaled Dot Product\nqueries and keys", "queries and keys"},
		{"heading later", "body first\n1 Introduction", "body first\n1 Introduction"},
		{"sentence after title", "2 Related work shows gains.\nmore", "2 Related work shows gains.\nmore"},
		{"title glued to word", "2 Relatedness\nmore", "2 Relatedness\nmore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageBody(tt.text, known); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSections_MultiWordHeadings(t *testing.T) {
	text := "1 Introduction\nwe study translation.\n2 Related Work\nprior systems.\n3.2 Scaled Dot Product\nqueries and keys."
	got := DetectSections(text)
	// the lookahead stops a title before the next capitalized word
	for _, want := range []string{"1 Introduction", "2 Related", "3.2 Scaled"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if contains(got, "2 Related Work") {
		t.Errorf("unexpected full title in %q", got)
	}
}

func TestAssignSection_MultiWordHeadings(t *testing.T) {
	known := DetectSections("1 Introduction\nbody.\n2 Related Work\nbody.\n3.2 Scaled Dot Product\nbody.")

	if got := AssignSection("2 Related Work\nprior systems", known, "1 Introduction"); got != "2 Related" {
		t.Errorf("related work page: got %q", got)
	}
	if got := AssignSection("3.2 Scaled Dot Product\nqueries and keys", known, "2 Related"); got != "3.2 Scaled" {
		t.Errorf("sub-numbered page: got %q", got)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
