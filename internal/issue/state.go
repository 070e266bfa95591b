package issue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusClosed     Status = "closed"
	StatusDecomposed Status = "decomposed"
)

// ParseStatus validates the canonical status values.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed, StatusDecomposed:
		return s, nil
	default:
		return "", fmt.Errorf("invalid status %q", raw)
	}
}

// State is the parsed content of a STATE.md file.
type State struct {
	Status         Status
	Progress       int // percent, -1 when absent
	LastUpdated    string
	Dependencies   []string
	DecomposedInto []string
}

// Anchored line patterns recognized in STATE.md.
var (
	statusRe       = regexp.MustCompile(`^-\s*\*\*Status:\*\*\s*(.+?)\s*$`)
	progressRe     = regexp.MustCompile(`^-\s*\*\*Progress:\*\*\s*(\d+)%\s*$`)
	lastUpdatedRe  = regexp.MustCompile(`^-\s*\*\*Last Updated:\*\*\s*(.+?)\s*$`)
	dependenciesRe = regexp.MustCompile(`^-\s*\*\*Dependencies:\*\*\s*\[(.*)\]\s*$`)
	bulletRe       = regexp.MustCompile("^[-*]\\s+`?([^`\\s]+)`?\\s*$")
)

// ParseState parses STATE.md content. A missing or invalid Status is an
// error; everything else is optional.
func ParseState(content string) (*State, error) {
	st := &State{Progress: -1}
	statusSeen := false
	inDecomposed := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.HasPrefix(trimmed, "## ") {
			inDecomposed = strings.EqualFold(strings.TrimSpace(trimmed[3:]), "Decomposed Into")
			continue
		}
		if inDecomposed {
			if m := bulletRe.FindStringSubmatch(strings.TrimSpace(trimmed)); m != nil {
				st.DecomposedInto = append(st.DecomposedInto, m[1])
			}
			continue
		}
		if m := statusRe.FindStringSubmatch(trimmed); m != nil {
			status, err := ParseStatus(m[1])
			if err != nil {
				return nil, err
			}
			st.Status = status
			statusSeen = true
			continue
		}
		if m := progressRe.FindStringSubmatch(trimmed); m != nil {
			st.Progress, _ = strconv.Atoi(m[1])
			continue
		}
		if m := lastUpdatedRe.FindStringSubmatch(trimmed); m != nil {
			st.LastUpdated = m[1]
			continue
		}
		if m := dependenciesRe.FindStringSubmatch(trimmed); m != nil {
			for _, dep := range strings.Split(m[1], ",") {
				dep = strings.TrimSpace(dep)
				dep = strings.Trim(dep, "`")
				if dep != "" {
					st.Dependencies = append(st.Dependencies, dep)
				}
			}
			continue
		}
	}
	if !statusSeen {
		return nil, fmt.Errorf("STATE.md has no Status line")
	}
	return st, nil
}

// RenderStateUpdate rewrites the Status, Progress, and Last Updated lines
// of STATE.md content in place, leaving everything else untouched. The
// rewrite is idempotent: applying it twice yields the same bytes.
func RenderStateUpdate(content string, status Status, progress int, date string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		switch {
		case statusRe.MatchString(line):
			lines[i] = fmt.Sprintf("- **Status:** %s", status)
		case progressRe.MatchString(line):
			lines[i] = fmt.Sprintf("- **Progress:** %d%%", progress)
		case lastUpdatedRe.MatchString(line):
			lines[i] = fmt.Sprintf("- **Last Updated:** %s", date)
		}
	}
	return strings.Join(lines, "\n")
}
