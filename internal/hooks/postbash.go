package hooks

import (
	"fmt"
	"strings"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/shell"
	"github.com/cowwoc/cat/internal/worktree"
)

// CommitScopeChecker warns after a `git commit` whose message appears to
// bundle unrelated scopes into one commit.
type CommitScopeChecker struct{}

func (CommitScopeChecker) Name() string { return "detect-concatenated-commit" }

func (CommitScopeChecker) Handle(in *Input) (*Outcome, error) {
	command := in.BashCommand()
	message, ok := commitMessage(command)
	if !ok {
		return nil, nil
	}
	if scopes := bundledScopes(message); len(scopes) > 1 {
		return &Outcome{Warnings: []string{fmt.Sprintf(
			"commit message bundles %d scopes (%s); consider one commit per scope",
			len(scopes), strings.Join(scopes, ", "))}}, nil
	}
	return nil, nil
}

// commitMessage extracts the -m argument of a git commit command.
func commitMessage(command string) (string, bool) {
	for _, tokens := range shell.SplitCommands(shell.Tokenize(command)) {
		rest, _, _ := shell.StripEnvPrefix(tokens, "CAT_AGENT_ID")
		if len(rest) < 2 || rest[0].Value != "git" || rest[1].Value != "commit" {
			continue
		}
		for i := 2; i < len(rest)-1; i++ {
			if rest[i].Value == "-m" || rest[i].Value == "--message" {
				return rest[i+1].Value, true
			}
		}
	}
	return "", false
}

// bundledScopes returns the distinct conventional-commit scopes found in
// a message that chains several "type(scope): subject" fragments.
func bundledScopes(message string) []string {
	var scopes []string
	seen := map[string]bool{}
	for _, fragment := range strings.FieldsFunc(message, func(r rune) bool {
		return r == ';' || r == '\n'
	}) {
		fragment = strings.TrimSpace(fragment)
		open := strings.IndexByte(fragment, '(')
		closeParen := strings.IndexByte(fragment, ')')
		if open <= 0 || closeParen <= open+1 || !strings.HasPrefix(fragment[closeParen+1:], ":") {
			continue
		}
		scope := fragment[open+1 : closeParen]
		if !seen[scope] {
			seen[scope] = true
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// RebaseTargetChecker warns after a `git rebase` whose target is not the
// worktree's recorded fork point.
type RebaseTargetChecker struct{}

func (RebaseTargetChecker) Name() string { return "validate-rebase-target" }

func (RebaseTargetChecker) Handle(in *Input) (*Outcome, error) {
	command := in.BashCommand()
	target, ok := rebaseTarget(command)
	if !ok || target == "" {
		return nil, nil
	}
	g := git.New(in.CWD)
	point, err := worktree.ReadBranchPoint(g)
	if err != nil {
		// No recorded fork point: nothing to compare against.
		return nil, nil
	}
	targetHash, err := g.Rev(target)
	if err != nil {
		return nil, nil
	}
	if targetHash != point {
		return &Outcome{Warnings: []string{fmt.Sprintf(
			"rebase targeted %s but this worktree's recorded fork point is %s; history may drift from the branch point",
			target, point)}}, nil
	}
	return nil, nil
}

// rebaseTarget extracts the upstream argument of a plain `git rebase`.
// Flag-driven forms (--onto, --continue, --abort) are out of scope.
func rebaseTarget(command string) (string, bool) {
	for _, tokens := range shell.SplitCommands(shell.Tokenize(command)) {
		rest, _, _ := shell.StripEnvPrefix(tokens, "CAT_AGENT_ID")
		if len(rest) < 2 || rest[0].Value != "git" || rest[1].Value != "rebase" {
			continue
		}
		for _, tok := range rest[2:] {
			if strings.HasPrefix(tok.Value, "-") {
				if tok.Value == "--onto" || tok.Value == "--continue" || tok.Value == "--abort" {
					return "", false
				}
				continue
			}
			return tok.Value, true
		}
		return "", true
	}
	return "", false
}
