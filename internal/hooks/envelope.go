package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// RunEnvelope reads one JSON object from stdin, dispatches it, and writes
// one JSON object to stdout. It always returns exit code 0: the host
// treats non-zero exit as hook failure, and a broken hook must degrade to
// a no-op rather than take the session down. Failures surface through
// the systemMessage field instead.
func RunEnvelope(stdin io.Reader, stdout, stderr io.Writer, dispatch func(*Input) (*Response, []string)) int {
	resp := runProtected(stdin, stderr, dispatch)
	data, err := json.Marshal(resp)
	if err != nil {
		// Response marshalling can only fail on exotic field types; emit
		// the minimal valid payload by hand.
		fmt.Fprintf(stdout, `{"systemMessage":%q}`, "hook response encoding failed: "+err.Error())
		fmt.Fprintln(stdout)
		return 0
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}

func runProtected(stdin io.Reader, stderr io.Writer, dispatch func(*Input) (*Response, []string)) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = &Response{SystemMessage: fmt.Sprintf("hook panicked: %v", r)}
		}
	}()

	data, err := io.ReadAll(stdin)
	if err != nil {
		return &Response{SystemMessage: fmt.Sprintf("reading hook input: %v", err)}
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return &Response{SystemMessage: fmt.Sprintf("decoding hook input: %v", err)}
	}

	out, warnings := dispatch(&in)
	for _, w := range warnings {
		fmt.Fprintln(stderr, w)
	}
	if out == nil {
		out = &Response{}
	}
	return out
}
