package hooks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cowwoc/cat/internal/session"
)

// StatusBoxMarker is the line the status skill instructs the assistant to
// reproduce verbatim in its final message.
const StatusBoxMarker = "=== CAT STATUS ==="

// statusFailureKey is the per-session failure counter for this check.
const statusFailureKey = "status-output"

// StatusOutputEnforcer verifies on Stop that the assistant's last turn
// contains the status box when the status skill ran this turn. The first
// violation blocks with guidance; the second gives up and lets the turn
// end so a confused assistant cannot loop forever.
type StatusOutputEnforcer struct {
	// SessionDir opens the per-session scratch directory.
	SessionDir func(sessionID string) (*session.Dir, error)
	// LastAssistantTurn reads the assistant's most recent message text.
	LastAssistantTurn func(transcriptPath string) (string, bool)
	// StatusSkillRan reports whether the status skill was invoked this
	// turn.
	StatusSkillRan func(transcriptPath string) bool
}

// NewStatusOutputEnforcer builds the production enforcer reading the
// host transcript.
func NewStatusOutputEnforcer(configRoot string) *StatusOutputEnforcer {
	return &StatusOutputEnforcer{
		SessionDir: func(sessionID string) (*session.Dir, error) {
			return session.NewDir(configRoot, sessionID)
		},
		LastAssistantTurn: lastAssistantTurn,
		StatusSkillRan:    statusSkillRan,
	}
}

func (e *StatusOutputEnforcer) Name() string { return "enforce-status-output" }

func (e *StatusOutputEnforcer) Handle(in *Input) (*Outcome, error) {
	if in.StopHookActive {
		// Already re-entered through a previous block; never loop.
		return nil, nil
	}
	if !e.StatusSkillRan(in.TranscriptPath) {
		return nil, nil
	}
	turn, ok := e.LastAssistantTurn(in.TranscriptPath)
	if ok && strings.Contains(turn, StatusBoxMarker) {
		if d, err := e.SessionDir(in.SessionID); err == nil {
			_ = d.ResetFailureCount(statusFailureKey)
		}
		return nil, nil
	}

	d, err := e.SessionDir(in.SessionID)
	if err != nil {
		return nil, err
	}
	failures, err := d.IncrementFailureCount(statusFailureKey)
	if err != nil {
		return nil, err
	}
	if failures > 1 {
		// Fail fast: report instead of blocking a second time.
		return &Outcome{Warnings: []string{
			"status box still missing after a retry; giving up on enforcement for this turn",
		}}, nil
	}
	return &Outcome{
		Block: true,
		Reason: fmt.Sprintf(
			"The status skill was invoked but your reply does not contain the status box.\nEnd your reply with the verbatim box starting with %q.", StatusBoxMarker),
	}, nil
}

// transcriptLine is the subset of a host transcript entry we read.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// lastAssistantTurn scans the JSONL transcript for the final assistant
// message and flattens its text content.
func lastAssistantTurn(transcriptPath string) (string, bool) {
	f, err := os.Open(transcriptPath) //nolint:gosec // G304: path comes from the host
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()

	var last string
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Message.Role != "assistant" {
			continue
		}
		if text := flattenContent(line.Message.Content); text != "" {
			last = text
			found = true
		}
	}
	return last, found
}

// flattenContent joins the text blocks of a message content field, which
// is either a plain string or an array of typed blocks.
func flattenContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// statusSkillRan reports whether the transcript mentions the status skill
// being loaded this conversation.
func statusSkillRan(transcriptPath string) bool {
	data, err := os.ReadFile(transcriptPath) //nolint:gosec // G304: path comes from the host
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "/cat:status")
}
