package hooks

import (
	"fmt"
	"strings"
)

// Policy is how a dispatcher aggregates its handlers' outcomes.
type Policy int

const (
	// FirstBlockWins iterates until a handler blocks, then returns its
	// reason immediately. Advisory warnings from earlier handlers are
	// still emitted.
	FirstBlockWins Policy = iota
	// ConcatenateContext runs every handler and joins their context
	// strings with blank lines.
	ConcatenateContext
	// WarnOnly runs every handler; blocks are demoted to warnings.
	WarnOnly
	// SingleContext returns at the first handler that produces context.
	SingleContext
)

// Dispatcher holds the static handler chain for one lifecycle event.
type Dispatcher struct {
	Event    Event
	Policy   Policy
	Handlers []Handler
}

// Dispatch runs the chain and aggregates per the policy. Handler panics
// and errors become warnings: one broken handler must not disable the
// chain.
func (d *Dispatcher) Dispatch(in *Input) (*Response, []string) {
	var warnings []string
	var contexts []string

	for _, h := range d.Handlers {
		out, err := safeHandle(h, in)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("[%s] %v", h.Name(), err))
			continue
		}
		if out == nil {
			continue
		}
		warnings = append(warnings, out.Warnings...)
		if out.SystemMessage != "" {
			warnings = append(warnings, out.SystemMessage)
		}
		if out.Block {
			switch d.Policy {
			case FirstBlockWins:
				return &Response{Decision: "block", Reason: out.Reason}, warnings
			default:
				warnings = append(warnings, fmt.Sprintf("[%s] %s", h.Name(), out.Reason))
			}
		}
		if out.Context != "" {
			contexts = append(contexts, out.Context)
			if d.Policy == SingleContext {
				break
			}
		}
	}
	return d.contextResponse(contexts), warnings
}

func (d *Dispatcher) contextResponse(contexts []string) *Response {
	if len(contexts) == 0 {
		return &Response{}
	}
	combined := strings.Join(contexts, "\n\n")
	switch d.Event {
	case EventSessionStart, EventSubagentStart:
		return &Response{HookSpecificOutput: &HookSpecificOutput{
			HookEventName:     string(d.Event),
			AdditionalContext: combined,
		}}
	default:
		return &Response{HookSpecificOutput: &HookSpecificOutput{AdditionalContext: combined}}
	}
}

func safeHandle(h Handler, in *Input) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(in)
}
