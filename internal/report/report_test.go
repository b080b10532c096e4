package report

import (
	"strings"
	"testing"
)

func TestPassFail(t *testing.T) {
	cases := []struct {
		grade, maxGrade int
		want            string
	}{
		{5, 5, "all 5 passing"},
		{0, 5, "all 5 failing"},
		{3, 5, "2 failing out of 5"},
		{6, 5, "6 passing out of 5 [!]"},
		{0, 0, "all 0 passing"},
	}
	for _, c := range cases {
		if got := PassFail(c.grade, c.maxGrade); got != c.want {
			t.Errorf("PassFail(%d, %d) = %q, want %q", c.grade, c.maxGrade, got, c.want)
		}
	}
}

func TestSignalExplanation(t *testing.T) {
	cases := map[int]string{
		4:  "illegal instruction",
		6:  "abort, possibly because of a failed assertion",
		8:  "arithmetic exception",
		9:  "program killed, possibly because of an infinite loop or memory exhaustion",
		7:  "bus error",
		11: "segmentation fault",
		99: "crash (signal 99)",
	}
	for signal, want := range cases {
		if got := signalExplanation(signal); got != want {
			t.Errorf("signalExplanation(%d) = %q, want %q", signal, got, want)
		}
	}
}

func TestToMarkdownExplanation(t *testing.T) {
	yaml := `
grade: 0
max-grade: 5
explanation: "could not compile the submission"
`
	md, grade, maxGrade, err := ToMarkdown("build", yaml)
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if grade != 0 || maxGrade != 5 {
		t.Errorf("grade pair %d/%d, want 0/5", grade, maxGrade)
	}
	if !strings.Contains(md, "could not compile the submission") {
		t.Error("explanation not quoted verbatim")
	}
	if !strings.Contains(md, "## Error") {
		t.Error("missing error header")
	}
	if strings.Contains(md, "###") {
		t.Error("explanation report should not render groups")
	}
}

func TestToMarkdownFiltersPassingGroups(t *testing.T) {
	yaml := `
grade: 3
max-grade: 5
groups:
  - grade: 2
    max-grade: 2
    description: "Passing group"
    tests:
      - coefficient: 1
        description: "fine"
        success: true
  - grade: 1
    max-grade: 3
    description: "Partial group"
    tests:
      - coefficient: 1
        description: "works"
        success: true
      - coefficient: 2
        description: "crashes hard"
        success: false
        signal: 11
`
	md, grade, maxGrade, err := ToMarkdown("build", yaml)
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if grade != 3 || maxGrade != 5 {
		t.Errorf("grade pair %d/%d, want 3/5", grade, maxGrade)
	}
	if !strings.Contains(md, "## Failed tests report for build (2 failing out of 5)") {
		t.Errorf("missing report header in %q", md)
	}
	if strings.Contains(md, "Passing group") {
		t.Error("fully passing group should be omitted")
	}
	if !strings.Contains(md, "### Partial group (2 failing out of 3)") {
		t.Errorf("missing group header in %q", md)
	}
	if strings.Contains(md, "- works") {
		t.Error("successful test listed as failing")
	}
	if !strings.Contains(md, "- crashes hard (coefficient 2) [segmentation fault]") {
		t.Errorf("failing test line wrong in %q", md)
	}
}

func TestToMarkdownZeroGroupOmitsTests(t *testing.T) {
	yaml := `
grade: 0
max-grade: 4
groups:
  - grade: 0
    max-grade: 4
    tests:
      - coefficient: 1
        description: "first"
        success: false
      - coefficient: 1
        description: "second"
        success: false
`
	md, _, _, err := ToMarkdown("test", yaml)
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if !strings.Contains(md, "### *Test group* (all 4 failing)") {
		t.Errorf("missing zero-group header in %q", md)
	}
	if strings.Contains(md, "- first") || strings.Contains(md, "Failing tests") {
		t.Error("zero-grade group should not list individual tests")
	}
}

func TestToMarkdownToleratesGradeAboveMax(t *testing.T) {
	yaml := `
grade: 6
max-grade: 5
groups:
  - grade: 6
    max-grade: 5
    tests: []
`
	md, grade, maxGrade, err := ToMarkdown("bonus", yaml)
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if grade != 6 || maxGrade != 5 {
		t.Errorf("grade pair %d/%d, want 6/5", grade, maxGrade)
	}
	if !strings.Contains(md, "6 passing out of 5 [!]") {
		t.Errorf("anomalous grade not flagged in %q", md)
	}
}

func TestToMarkdownBadYAML(t *testing.T) {
	if _, _, _, err := ToMarkdown("build", "{not yaml: ["); err == nil {
		t.Error("expected decode error")
	}
}
