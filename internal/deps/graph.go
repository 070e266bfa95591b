// Package deps builds the dependency graph over the issue tree and
// answers the two questions the scheduler cares about: which issues are
// blocked, and whether the declared dependencies form a cycle.
package deps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cowwoc/cat/internal/issue"
)

// MaxDepth bounds the cycle-detection DFS.
const MaxDepth = 1000

// ErrDepthExceeded indicates the graph is deeper than the DFS is willing
// to follow, which in practice means a pathological issue tree.
var ErrDepthExceeded = fmt.Errorf("dependency graph deeper than %d", MaxDepth)

// Graph is a directed dependency graph over qualified issue names.
type Graph struct {
	store *issue.Store
	edges map[string][]string
}

// Build constructs the graph from the store's indexes. Explicit edges
// come from the Dependencies list of open and in-progress issues; a bare
// dependency name resolves through the bare-name index, and an ambiguous
// one expands to all candidates so a cycle through any of them is still
// found. Implicit edges link every decomposed parent to its sub-issues
// regardless of the parent's status.
func Build(store *issue.Store) *Graph {
	g := &Graph{store: store, edges: map[string][]string{}}
	for _, iss := range store.All() {
		if iss.State == nil {
			continue
		}
		if iss.State.Status == issue.StatusOpen || iss.State.Status == issue.StatusInProgress {
			for _, dep := range iss.State.Dependencies {
				for _, target := range g.resolve(dep) {
					g.addEdge(iss.Qualified, target)
				}
			}
		}
		for _, sub := range iss.State.DecomposedInto {
			if _, ok := store.Get(sub); ok {
				g.addEdge(iss.Qualified, sub)
			}
		}
	}
	for from := range g.edges {
		sort.Strings(g.edges[from])
	}
	return g
}

// resolve maps a dependency reference to the qualified names it can mean.
// An unresolvable reference produces no edges; blockedness reporting
// handles it separately.
func (g *Graph) resolve(ref string) []string {
	if issue.IsQualified(ref) {
		if _, ok := g.store.Get(ref); ok {
			return []string{ref}
		}
		return nil
	}
	return g.store.ResolveBare(ref)
}

func (g *Graph) addEdge(from, to string) {
	if from == to {
		g.edges[from] = append(g.edges[from], to)
		return
	}
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Edges returns the sorted outgoing edges of a node.
func (g *Graph) Edges(from string) []string {
	return g.edges[from]
}

// Cycles finds every dependency cycle, each reported once in canonical
// "A -> B -> C -> A" form starting from the lexicographically smallest
// member.
func (g *Graph) Cycles() ([]string, error) {
	nodes := make([]string, 0, len(g.edges))
	for n := range g.edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	visited := map[string]bool{}
	seen := map[string]bool{}
	var cycles []string
	for _, n := range nodes {
		if visited[n] {
			continue
		}
		onPath := map[string]int{}
		var path []string
		if err := g.dfs(n, 0, visited, onPath, &path, seen, &cycles); err != nil {
			return nil, err
		}
	}
	sort.Strings(cycles)
	return cycles, nil
}

func (g *Graph) dfs(node string, depth int, visited map[string]bool, onPath map[string]int, path *[]string, seen map[string]bool, cycles *[]string) error {
	if depth > MaxDepth {
		return ErrDepthExceeded
	}
	if at, ok := onPath[node]; ok {
		cycle := canonicalCycle((*path)[at:])
		if !seen[cycle] {
			seen[cycle] = true
			*cycles = append(*cycles, cycle)
		}
		return nil
	}
	if visited[node] {
		return nil
	}
	onPath[node] = len(*path)
	*path = append(*path, node)
	for _, next := range g.edges[node] {
		if err := g.dfs(next, depth+1, visited, onPath, path, seen, cycles); err != nil {
			return err
		}
	}
	*path = (*path)[:len(*path)-1]
	delete(onPath, node)
	visited[node] = true
	return nil
}

// canonicalCycle rotates the cycle to start at its smallest member and
// renders it with the start repeated at the end.
func canonicalCycle(members []string) string {
	min := 0
	for i, m := range members {
		if m < members[min] {
			min = i
		}
	}
	rotated := make([]string, 0, len(members)+1)
	rotated = append(rotated, members[min:]...)
	rotated = append(rotated, members[:min]...)
	rotated = append(rotated, members[min])
	return strings.Join(rotated, " -> ")
}

// BlockerStatus classifies one unresolved dependency of a blocked issue.
type BlockerStatus string

const (
	BlockerOpen       BlockerStatus = "open"
	BlockerInProgress BlockerStatus = "in-progress"
	BlockerUnknown    BlockerStatus = "unknown"
	BlockerNotFound   BlockerStatus = "not_found"
)

// Blocker is one dependency preventing an issue from being scheduled.
type Blocker struct {
	Ref    string        `json:"ref"`
	Status BlockerStatus `json:"status"`
}

// Blockers returns the unresolved dependencies of one issue. Closed
// dependencies never block; anything else does.
func (g *Graph) Blockers(qualified string) []Blocker {
	iss, ok := g.store.Get(qualified)
	if !ok || iss.State == nil {
		return nil
	}
	var blockers []Blocker
	for _, dep := range iss.State.Dependencies {
		targets := g.resolve(dep)
		if len(targets) == 0 {
			blockers = append(blockers, Blocker{Ref: dep, Status: BlockerNotFound})
			continue
		}
		for _, target := range targets {
			if status := g.classify(target, map[string]bool{}); status != "" {
				blockers = append(blockers, Blocker{Ref: target, Status: status})
			}
		}
	}
	return blockers
}

// classify returns the blocking status of a resolved dependency, or ""
// when it does not block. The visiting set guards against decomposed
// parents that list each other.
func (g *Graph) classify(qualified string, visiting map[string]bool) BlockerStatus {
	if visiting[qualified] {
		return ""
	}
	visiting[qualified] = true
	target, ok := g.store.Get(qualified)
	if !ok {
		return BlockerNotFound
	}
	if target.State == nil {
		return BlockerUnknown
	}
	switch target.State.Status {
	case issue.StatusClosed:
		return ""
	case issue.StatusOpen:
		return BlockerOpen
	case issue.StatusInProgress:
		return BlockerInProgress
	case issue.StatusDecomposed:
		// A decomposed parent blocks until its sub-issues close.
		for _, sub := range target.State.DecomposedInto {
			if s := g.classify(sub, visiting); s != "" {
				return BlockerOpen
			}
		}
		return ""
	default:
		return BlockerUnknown
	}
}

// BlockedIssues reports every open or in-progress issue that has at least
// one unresolved dependency, keyed by qualified name.
func (g *Graph) BlockedIssues() map[string][]Blocker {
	blocked := map[string][]Blocker{}
	for _, iss := range g.store.All() {
		if iss.State == nil {
			continue
		}
		if iss.State.Status != issue.StatusOpen && iss.State.Status != issue.StatusInProgress {
			continue
		}
		if b := g.Blockers(iss.Qualified); len(b) > 0 {
			blocked[iss.Qualified] = b
		}
	}
	return blocked
}
