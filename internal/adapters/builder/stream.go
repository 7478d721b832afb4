package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// buildMessage is the subset of the engine's build-stream frames we care
// about: step output and the inline error a failing step produces.
type buildMessage struct {
	Stream      string `json:"stream,omitempty"`
	ErrorMsg    string `json:"error,omitempty"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail,omitempty"`
}

// drainBuildOutput consumes the engine's build stream until EOF, forwarding
// step output to out. The first frame carrying an error aborts with that
// error: the engine keeps the HTTP status 200 even for failed builds, so
// this is the only place a build failure is visible.
func drainBuildOutput(r io.Reader, out io.Writer) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode build output: %w", err)
		}
		if msg.ErrorDetail != nil && msg.ErrorDetail.Message != "" {
			return fmt.Errorf("build step failed: %s", msg.ErrorDetail.Message)
		}
		if msg.ErrorMsg != "" {
			return fmt.Errorf("build step failed: %s", msg.ErrorMsg)
		}
		if s := strings.TrimRight(msg.Stream, "\n"); s != "" && out != nil {
			fmt.Fprintln(out, s)
		}
	}
}
