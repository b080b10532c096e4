package report

import (
	"fmt"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"
)

// Report is the YAML document a grader produces for one step. When
// Explanation is set the run hit an infrastructure error and Groups
// carries nothing useful.
type Report struct {
	Grade       int     `yaml:"grade"`
	MaxGrade    int     `yaml:"max-grade"`
	Explanation string  `yaml:"explanation,omitempty"`
	Groups      []Group `yaml:"groups,omitempty"`
}

// Group is one set of related tests inside a report.
type Group struct {
	Grade       int    `yaml:"grade"`
	MaxGrade    int    `yaml:"max-grade"`
	Description string `yaml:"description,omitempty"`
	Tests       []Test `yaml:"tests"`
}

// Test is a single test outcome. Signal is set only when the test
// process was killed by a signal.
type Test struct {
	Coefficient int    `yaml:"coefficient"`
	Description string `yaml:"description"`
	Success     bool   `yaml:"success"`
	Signal      *int   `yaml:"signal,omitempty"`
}

// ToMarkdown renders the YAML result for a step into a Markdown report
// and returns it with the grade pair. Fully-passing groups are omitted
// from the body but still count toward the totals.
func ToMarkdown(step, yamlResult string) (string, int, int, error) {
	var r Report
	if err := yaml.Unmarshal([]byte(yamlResult), &r); err != nil {
		return "", 0, 0, fmt.Errorf("decoding report for %s: %w", step, err)
	}
	if r.Explanation != "" {
		md := fmt.Sprintf("## Error\n\nThere has been an error during the test for %s:\n\n```\n%s\n```",
			step, r.Explanation)
		return md, r.Grade, r.MaxGrade, nil
	}
	var groups []string
	for _, g := range r.Groups {
		if g.Grade == g.MaxGrade {
			continue
		}
		groups = append(groups, g.render())
	}
	md := fmt.Sprintf("## Failed tests report for %s (%s)\n\n%s",
		step, PassFail(r.Grade, r.MaxGrade), strings.Join(groups, "\n"))
	return md, r.Grade, r.MaxGrade, nil
}

func (g Group) render() string {
	// A group at zero means every test in it failed; listing them all
	// over again would add nothing, so keep the header only.
	tests := ""
	if g.Grade != 0 {
		var lines []string
		for _, t := range g.Tests {
			if t.Success {
				continue
			}
			line := "- " + t.Description
			if t.Coefficient != 1 {
				line += fmt.Sprintf(" (coefficient %d)", t.Coefficient)
			}
			if t.Signal != nil {
				line += fmt.Sprintf(" [%s]", signalExplanation(*t.Signal))
			}
			lines = append(lines, line)
		}
		tests = "Failing tests:\n\n" + strings.Join(lines, "\n")
	}
	desc := g.Description
	if desc == "" {
		desc = "*Test group*"
	}
	return fmt.Sprintf("### %s (%s)\n\n%s\n", desc, PassFail(g.Grade, g.MaxGrade), tests)
}

// PassFail phrases a grade pair. A grade above the maximum signals an
// upstream bug; it is flagged rather than rejected.
func PassFail(grade, maxGrade int) string {
	switch {
	case grade > maxGrade:
		return fmt.Sprintf("%d passing out of %d [!]", grade, maxGrade)
	case grade == maxGrade:
		return fmt.Sprintf("all %d passing", maxGrade)
	case grade == 0:
		return fmt.Sprintf("all %d failing", maxGrade)
	default:
		return fmt.Sprintf("%d failing out of %d", maxGrade-grade, maxGrade)
	}
}

func signalExplanation(signal int) string {
	switch syscall.Signal(signal) {
	case syscall.SIGILL:
		return "illegal instruction"
	case syscall.SIGABRT:
		return "abort, possibly because of a failed assertion"
	case syscall.SIGFPE:
		return "arithmetic exception"
	case syscall.SIGKILL:
		return "program killed, possibly because of an infinite loop or memory exhaustion"
	case syscall.SIGBUS:
		return "bus error"
	case syscall.SIGSEGV:
		return "segmentation fault"
	default:
		return fmt.Sprintf("crash (signal %d)", signal)
	}
}
