package issue

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// MaxWalkDepth bounds how deep under the issues root the walk descends.
const MaxWalkDepth = 4

// DefaultEntryCap bounds how many filesystem entries one walk may visit.
const DefaultEntryCap = 100000

// ErrEntryCapExceeded indicates the issue tree is larger than the walk
// is willing to scan.
var ErrEntryCapExceeded = fmt.Errorf("issue tree exceeds entry cap")

// Issue is one issue directory discovered by the walk.
type Issue struct {
	Qualified string
	Name      *Name
	Path      string
	State     *State
	StateErr  error // parse failure, recorded rather than aborting the walk
}

// Store indexes the issue tree by qualified and bare name.
type Store struct {
	root        string
	entryCap    int
	ByQualified map[string]*Issue
	ByBare      map[string][]string
}

// DirFor returns the issues directory for a repository root.
func DirFor(repoRoot string) string {
	return filepath.Join(repoRoot, ".claude", "cat", "issues")
}

// versionDirRe matches version grouping directories like v2 or v2.1.
var versionDirRe = regexp.MustCompile(`^v(\d+(?:\.\d+){0,2})$`)

// Load walks the issue tree rooted at dir and builds both indexes. A
// missing root yields an empty store, not an error.
func Load(dir string) (*Store, error) {
	return LoadCapped(dir, DefaultEntryCap)
}

// LoadCapped is Load with an explicit entry cap, for tests.
func LoadCapped(dir string, entryCap int) (*Store, error) {
	s := &Store{
		root:        dir,
		entryCap:    entryCap,
		ByQualified: map[string]*Issue{},
		ByBare:      map[string][]string{},
	}
	visited := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		visited++
		if visited > entryCap {
			return fmt.Errorf("%w: more than %d entries under %s", ErrEntryCapExceeded, entryCap, dir)
		}
		if !d.IsDir() {
			return nil
		}
		depth := pathDepth(dir, path)
		if depth > MaxWalkDepth {
			return filepath.SkipDir
		}
		if depth == 0 {
			return nil
		}
		qualified, ok := qualifiedNameFor(dir, path)
		if !ok {
			return nil
		}
		statePath := filepath.Join(path, "STATE.md")
		if _, err := os.Stat(statePath); err != nil {
			return nil
		}
		s.record(qualified, path, statePath)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, err
	}
	for bare := range s.ByBare {
		sort.Strings(s.ByBare[bare])
	}
	return s, nil
}

func (s *Store) record(qualified, path, statePath string) {
	name, err := ParseName(qualified)
	if err != nil {
		return
	}
	iss := &Issue{Qualified: qualified, Name: name, Path: path}
	data, err := os.ReadFile(statePath) //nolint:gosec // G304: path comes from the walk
	if err != nil {
		iss.StateErr = err
	} else {
		iss.State, iss.StateErr = ParseState(string(data))
	}
	s.ByQualified[qualified] = iss
	s.ByBare[name.Slug] = append(s.ByBare[name.Slug], qualified)
}

// pathDepth counts path segments of path below root.
func pathDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// qualifiedNameFor derives the qualified issue name for a directory. The
// canonical layout nests a slug directory under version directories
// (issues/v2/v2.1/add-parser -> 2.1-add-parser); a directory whose own
// name is already qualified is accepted as-is.
func qualifiedNameFor(root, path string) (string, bool) {
	base := filepath.Base(path)
	if IsQualified(base) {
		return base, true
	}
	if !slugOnlyRe.MatchString(base) {
		return "", false
	}
	parent := filepath.Base(filepath.Dir(path))
	if m := versionDirRe.FindStringSubmatch(parent); m != nil {
		return m[1] + "-" + base, true
	}
	return "", false
}

var slugOnlyRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Get returns the issue for an exact qualified name.
func (s *Store) Get(qualified string) (*Issue, bool) {
	iss, ok := s.ByQualified[qualified]
	return iss, ok
}

// ResolveBare returns the qualified names matching a bare name, sorted.
func (s *Store) ResolveBare(bare string) []string {
	return s.ByBare[bare]
}

// All returns every indexed issue ordered by (major, minor, patch, name).
func (s *Store) All() []*Issue {
	issues := make([]*Issue, 0, len(s.ByQualified))
	for _, iss := range s.ByQualified {
		issues = append(issues, iss)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Name.Less(issues[j].Name) })
	return issues
}

// UpdateStateFile rewrites the STATE.md of an issue directory with the
// given status, progress, and date. Rewriting with values already in the
// file leaves it byte-identical.
func UpdateStateFile(issueDir string, status Status, progress int, date string) error {
	statePath := filepath.Join(issueDir, "STATE.md")
	data, err := os.ReadFile(statePath) //nolint:gosec // G304: caller-controlled issue dir
	if err != nil {
		return fmt.Errorf("reading STATE.md: %w", err)
	}
	updated := RenderStateUpdate(string(data), status, progress, date)
	if updated == string(data) {
		return nil
	}
	if err := os.WriteFile(statePath, []byte(updated), 0o644); err != nil { //nolint:gosec // G306: issue files are world-readable
		return fmt.Errorf("writing STATE.md: %w", err)
	}
	return nil
}

// ReadPlan loads and parses the PLAN.md of an issue directory. A missing
// plan yields an empty Plan.
func ReadPlan(issueDir string) (*Plan, error) {
	data, err := os.ReadFile(filepath.Join(issueDir, "PLAN.md")) //nolint:gosec // G304: caller-controlled issue dir
	if err != nil {
		if os.IsNotExist(err) {
			return &Plan{}, nil
		}
		return nil, fmt.Errorf("reading PLAN.md: %w", err)
	}
	return ParsePlan(string(data)), nil
}
