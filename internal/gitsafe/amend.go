// Package gitsafe implements the guarded git operations: amending only
// unpushed commits, rebasing behind a backup branch, and merging an
// issue branch back with full cleanup.
package gitsafe

import (
	"fmt"
	"strings"

	"github.com/cowwoc/cat/internal/git"
)

// AmendStatus tags the amend-safe outcome.
type AmendStatus string

const (
	AmendOK            AmendStatus = "OK"
	AmendAlreadyPushed AmendStatus = "ALREADY_PUSHED"
	AmendRaceDetected  AmendStatus = "RACE_DETECTED"
	AmendError         AmendStatus = "ERROR"
)

// AmendResult is the structured outcome of AmendSafe.
type AmendResult struct {
	Status AmendStatus `json:"status"`

	// Head is the untouched commit an ALREADY_PUSHED refusal reports.
	Head         string      `json:"head,omitempty"`
	OldHead      string      `json:"old_head,omitempty"`
	NewHead      string      `json:"new_head,omitempty"`
	RaceDetected bool        `json:"race_detected"`
	Recovery     string      `json:"recovery,omitempty"`
	Message      string      `json:"message,omitempty"`
}

// AmendSafe amends HEAD only when the commit has not been pushed. After
// amending it re-checks the push ref: if the old head became an ancestor
// of the remote in the meantime, someone pushed between the check and
// the amend, and the caller gets a recovery hint instead of a silent
// divergence.
func AmendSafe(g *git.Git, message string) *AmendResult {
	oldHead, err := g.Head()
	if err != nil {
		return &AmendResult{Status: AmendError, Message: fmt.Sprintf("reading HEAD: %v", err)}
	}

	tracking, err := g.StatusBranch()
	if err != nil {
		return &AmendResult{Status: AmendError, OldHead: oldHead, Message: fmt.Sprintf("reading branch status: %v", err)}
	}
	if strings.Contains(tracking, "...") && !strings.Contains(tracking, "[ahead") {
		return &AmendResult{
			Status:  AmendAlreadyPushed,
			Head:    oldHead,
			Message: "HEAD is already pushed; amending would rewrite published history",
		}
	}

	if err := g.Amend(message); err != nil {
		return &AmendResult{Status: AmendError, OldHead: oldHead, Message: fmt.Sprintf("amending: %v", err)}
	}
	newHead, err := g.Head()
	if err != nil {
		return &AmendResult{Status: AmendError, OldHead: oldHead, Message: fmt.Sprintf("reading new HEAD: %v", err)}
	}

	pushRef, err := g.PushRef()
	if err != nil {
		return &AmendResult{Status: AmendError, OldHead: oldHead, NewHead: newHead, Message: fmt.Sprintf("resolving push ref: %v", err)}
	}
	if pushRef != "" {
		pushed, err := g.IsAncestor(oldHead, pushRef)
		if err != nil {
			return &AmendResult{Status: AmendError, OldHead: oldHead, NewHead: newHead, Message: fmt.Sprintf("race check: %v", err)}
		}
		if pushed {
			return &AmendResult{
				Status:       AmendRaceDetected,
				OldHead:      oldHead,
				NewHead:      newHead,
				RaceDetected: true,
				Recovery:     "git push --force-with-lease",
				Message:      "the original commit was pushed while amending",
			}
		}
	}
	return &AmendResult{Status: AmendOK, OldHead: oldHead, NewHead: newHead}
}
