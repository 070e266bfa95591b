// Package rules loads the markdown rule files injected into assistant
// context at session and subagent start.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
)

// Rule is one markdown rule file with its audience filters.
type Rule struct {
	Name string // file name without extension
	Body string

	// SubAgents limits the rule to the named subagent types; empty means
	// every agent.
	SubAgents []string
	// Paths limits the rule to sessions working under matching paths.
	Paths []string
}

// frontmatter is the YAML header between the leading "---" fences.
type frontmatter struct {
	SubAgents []string `yaml:"subAgents"`
	Paths     []string `yaml:"paths"`
}

// DirFor returns the rules directory for a repository root.
func DirFor(repoRoot string) string {
	return filepath.Join(repoRoot, ".claude", "cat", "rules")
}

// Load reads every *.md rule under dir, sorted by file name. A missing
// directory yields no rules.
func Load(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading rules dir: %w", err)
	}
	var rules []Rule
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // G304: path from ReadDir
		if err != nil {
			return nil, fmt.Errorf("reading rule %s: %w", name, err)
		}
		rule, err := Parse(strings.TrimSuffix(name, ".md"), string(data))
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

// Parse splits optional YAML frontmatter from the markdown body.
func Parse(name, content string) (Rule, error) {
	rule := Rule{Name: name, Body: strings.TrimSpace(content)}
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return rule, nil
	}
	header, body, ok := strings.Cut(rest, "\n---")
	if !ok {
		return rule, nil
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return Rule{}, fmt.Errorf("parsing frontmatter: %w", err)
	}
	rule.SubAgents = fm.SubAgents
	rule.Paths = fm.Paths
	rule.Body = strings.TrimSpace(strings.TrimPrefix(body, "\n"))
	return rule, nil
}

// AppliesTo reports whether the rule targets the given subagent type and
// working path. The zero subagent ("") is the main agent.
func (r Rule) AppliesTo(subagent, workPath string) bool {
	if len(r.SubAgents) > 0 {
		matched := false
		for _, sa := range r.SubAgents {
			if sa == subagent {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(r.Paths) > 0 {
		matched := false
		for _, glob := range r.Paths {
			if ok, err := doublestar.Match(glob, filepath.ToSlash(workPath)); err == nil && ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// ContextBlob filters the rules for an audience and concatenates the
// matching bodies into one context string.
func ContextBlob(rules []Rule, subagent, workPath string) string {
	var parts []string
	for _, r := range rules {
		if r.AppliesTo(subagent, workPath) {
			parts = append(parts, r.Body)
		}
	}
	return strings.Join(parts, "\n\n")
}
