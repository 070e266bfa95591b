package issue

import (
	"regexp"
	"strings"
)

// Plan is the parsed content of a PLAN.md file.
type Plan struct {
	Goal          string
	FilesToCreate []string
	FilesToModify []string
	Steps         []string
	Preconditions []Precondition
}

// Precondition is one checklist item from the Pre-conditions section.
type Precondition struct {
	Text    string
	Checked bool
}

var (
	backtickPathRe = regexp.MustCompile("`([^`]+)`")
	numberedRe     = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
	checkboxRe     = regexp.MustCompile(`^[-*]\s+\[([ xX])\]\s+(.*)$`)
)

// ParsePlan parses PLAN.md content. All sections are optional; unknown
// sections are ignored.
func ParsePlan(content string) *Plan {
	p := &Plan{}
	section := ""
	var goalLines []string
	goalDone := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "## ") {
			section = strings.ToLower(strings.TrimSpace(line[3:]))
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch section {
		case "goal":
			// First paragraph only.
			if trimmed == "" {
				if len(goalLines) > 0 {
					goalDone = true
				}
				continue
			}
			if !goalDone {
				goalLines = append(goalLines, trimmed)
			}
		case "files to create":
			if path := listItemPath(trimmed); path != "" {
				p.FilesToCreate = append(p.FilesToCreate, path)
			}
		case "files to modify":
			if path := listItemPath(trimmed); path != "" {
				p.FilesToModify = append(p.FilesToModify, path)
			}
		case "execution steps":
			if m := numberedRe.FindStringSubmatch(trimmed); m != nil {
				p.Steps = append(p.Steps, m[1])
			}
		case "pre-conditions":
			if m := checkboxRe.FindStringSubmatch(trimmed); m != nil {
				p.Preconditions = append(p.Preconditions, Precondition{
					Text:    strings.TrimSpace(m[2]),
					Checked: m[1] != " ",
				})
			}
		}
	}
	p.Goal = strings.Join(goalLines, " ")
	return p
}

// listItemPath extracts the backtick-quoted path from a list item like
// "- `internal/foo/bar.go`". Items without a backtick path are skipped.
func listItemPath(line string) string {
	if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
		return ""
	}
	if m := backtickPathRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Token estimation constants for plan sizing. These are heuristics over
// the plan text, not measurements.
const (
	TokenBase          = 10000
	TokensPerCreate    = 5000
	TokensPerModify    = 3000
	TokensPerTestFile  = 4000
	TokensPerStep      = 2000
	DefaultTokenBudget = 160000
)

// EstimateTokens applies the sizing heuristic to a plan. Test files carry
// a surcharge on top of their create/modify cost because generated tests
// run long.
func (p *Plan) EstimateTokens() int {
	total := TokenBase
	for _, f := range p.FilesToCreate {
		total += TokensPerCreate
		if isTestPath(f) {
			total += TokensPerTestFile
		}
	}
	for _, f := range p.FilesToModify {
		total += TokensPerModify
		if isTestPath(f) {
			total += TokensPerTestFile
		}
	}
	total += TokensPerStep * len(p.Steps)
	return total
}

func isTestPath(path string) bool {
	return strings.Contains(strings.ToLower(path), "test")
}
