package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cowwoc/cat/internal/issue"
)

// buildStore creates an issue tree from {qualified: stateContent} and
// loads it.
func buildStore(t *testing.T, states map[string]string) *issue.Store {
	t.Helper()
	root := t.TempDir()
	for qualified, state := range states {
		name, err := issue.ParseName(qualified)
		if err != nil {
			t.Fatal(err)
		}
		version := strings.SplitN(qualified, "-", 2)[0]
		dir := filepath.Join(root, "v"+strings.SplitN(version, ".", 2)[0], "v"+version, name.Slug)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "STATE.md"), []byte(state), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s, err := issue.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func state(status string, deps ...string) string {
	var b strings.Builder
	b.WriteString("- **Status:** " + status + "\n")
	if len(deps) > 0 {
		b.WriteString("- **Dependencies:** [" + strings.Join(deps, ", ") + "]\n")
	}
	return b.String()
}

func TestBlockers(t *testing.T) {
	t.Parallel()
	s := buildStore(t, map[string]string{
		"1.0-schema": state("closed"),
		"1.1-lexer":  state("open"),
		"2.0-parser": state("open", "1.0-schema", "1.1-lexer", "3.0-missing"),
	})
	g := Build(s)
	blockers := g.Blockers("2.0-parser")
	if len(blockers) != 2 {
		t.Fatalf("blockers = %v, want 2 (closed dep does not block)", blockers)
	}
	byRef := map[string]BlockerStatus{}
	for _, b := range blockers {
		byRef[b.Ref] = b.Status
	}
	if byRef["1.1-lexer"] != BlockerOpen {
		t.Errorf("1.1-lexer status = %v", byRef["1.1-lexer"])
	}
	if byRef["3.0-missing"] != BlockerNotFound {
		t.Errorf("3.0-missing status = %v", byRef["3.0-missing"])
	}
}

func TestBlockers_BareNameResolution(t *testing.T) {
	t.Parallel()
	s := buildStore(t, map[string]string{
		"1.0-lexer":  state("in-progress"),
		"2.0-parser": state("open", "lexer"),
	})
	g := Build(s)
	blockers := g.Blockers("2.0-parser")
	if len(blockers) != 1 || blockers[0].Ref != "1.0-lexer" || blockers[0].Status != BlockerInProgress {
		t.Errorf("blockers = %v", blockers)
	}
}

func TestBlockedIssues_ClosedIssuesIgnored(t *testing.T) {
	t.Parallel()
	s := buildStore(t, map[string]string{
		"1.0-done":    state("closed", "2.0-waiting"),
		"2.0-waiting": state("open", "3.0-other"),
		"3.0-other":   state("open"),
	})
	g := Build(s)
	blocked := g.BlockedIssues()
	if len(blocked) != 1 {
		t.Fatalf("blocked = %v, want only 2.0-waiting", blocked)
	}
	if _, ok := blocked["2.0-waiting"]; !ok {
		t.Errorf("blocked = %v", blocked)
	}
}

func TestCycles_Canonical(t *testing.T) {
	t.Parallel()
	s := buildStore(t, map[string]string{
		"1.0-a": state("open", "2.0-b"),
		"2.0-b": state("open", "3.0-c"),
		"3.0-c": state("open", "1.0-a"),
		"4.0-d": state("open"),
	})
	g := Build(s)
	cycles, err := g.Cycles()
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 {
		t.Fatalf("cycles = %v, want 1", cycles)
	}
	want := "1.0-a -> 2.0-b -> 3.0-c -> 1.0-a"
	if cycles[0] != want {
		t.Errorf("cycle = %q, want %q", cycles[0], want)
	}
}

func TestCycles_SelfLoop(t *testing.T) {
	t.Parallel()
	s := buildStore(t, map[string]string{
		"1.0-a": state("open", "1.0-a"),
	})
	g := Build(s)
	cycles, err := g.Cycles()
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 || cycles[0] != "1.0-a -> 1.0-a" {
		t.Errorf("cycles = %v", cycles)
	}
}

func TestCycles_AmbiguousBareNameExpands(t *testing.T) {
	t.Parallel()
	// "dep" is ambiguous; the cycle runs through only one candidate but
	// must still be detected.
	s := buildStore(t, map[string]string{
		"1.0-root": state("open", "dep"),
		"2.0-dep":  state("open"),
		"3.0-dep":  state("open", "1.0-root"),
	})
	g := Build(s)
	cycles, err := g.Cycles()
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 || !strings.Contains(cycles[0], "3.0-dep") {
		t.Errorf("cycles = %v", cycles)
	}
}

func TestCycles_ImplicitDecompositionEdges(t *testing.T) {
	t.Parallel()
	parent := "- **Status:** decomposed\n\n## Decomposed Into\n\n- 1.1-child\n"
	child := state("open", "1.0-parent")
	s := buildStore(t, map[string]string{
		"1.0-parent": parent,
		"1.1-child":  child,
	})
	g := Build(s)
	cycles, err := g.Cycles()
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 {
		t.Fatalf("cycles = %v, want the parent/child loop", cycles)
	}
}

func TestBlockers_DecomposedParentBlocksUntilChildrenClose(t *testing.T) {
	t.Parallel()
	openParent := "- **Status:** decomposed\n\n## Decomposed Into\n\n- 1.1-child\n"
	s := buildStore(t, map[string]string{
		"1.0-parent": openParent,
		"1.1-child":  state("open"),
		"2.0-user":   state("open", "1.0-parent"),
	})
	g := Build(s)
	blockers := g.Blockers("2.0-user")
	if len(blockers) != 1 || blockers[0].Status != BlockerOpen {
		t.Errorf("blockers = %v", blockers)
	}

	closedParent := "- **Status:** decomposed\n\n## Decomposed Into\n\n- 1.1-child\n"
	s2 := buildStore(t, map[string]string{
		"1.0-parent": closedParent,
		"1.1-child":  state("closed"),
		"2.0-user":   state("open", "1.0-parent"),
	})
	g2 := Build(s2)
	if b := g2.Blockers("2.0-user"); len(b) != 0 {
		t.Errorf("parent with closed children should not block: %v", b)
	}
}
