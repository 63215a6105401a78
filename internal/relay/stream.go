package relay

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/llm"
)

// contentAccumulator reassembles the newline-delimited JSON lines of a
// streamed response and collects their content fragments. Chunk boundaries
// rarely fall on line boundaries, so a trailing partial line is carried over
// and prefixed onto the next chunk; a line is never parsed before its
// newline arrives, except for the final flush at end-of-stream.
type contentAccumulator struct {
	log    *zap.Logger
	carry  []byte
	reply  strings.Builder
	role   string
	done   bool
	errMsg string
}

func newContentAccumulator(log *zap.Logger) *contentAccumulator {
	return &contentAccumulator{log: log}
}

// Write feeds one raw upstream chunk into the accumulator.
func (a *contentAccumulator) Write(p []byte) {
	a.carry = append(a.carry, p...)
	for {
		i := bytes.IndexByte(a.carry, '\n')
		if i < 0 {
			return
		}
		line := a.carry[:i]
		a.carry = a.carry[i+1:]
		a.consume(line)
	}
}

// Flush parses whatever is left in the carry buffer. Called once the
// upstream reader reports end-of-stream.
func (a *contentAccumulator) Flush() {
	if len(a.carry) > 0 {
		a.consume(a.carry)
		a.carry = nil
	}
}

// consume parses one line. A malformed line degrades the transcript rather
// than aborting the stream: it is logged and contributes nothing.
func (a *contentAccumulator) consume(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var chunk llm.StreamChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		a.log.Warn("dropping malformed stream line",
			zap.ByteString("line", line),
			zap.Error(err))
		return
	}
	if chunk.Error != "" {
		// Terminal: the backend failed mid-generation. Whatever content
		// arrived before this line is a partial reply, not a transcript.
		if a.errMsg == "" {
			a.errMsg = chunk.Error
		}
		return
	}
	if chunk.Message.Role != "" && a.role == "" {
		a.role = chunk.Message.Role
	}
	a.reply.WriteString(chunk.Message.Content)
	if chunk.Done {
		a.done = true
	}
}

// Reply returns the concatenation of every content fragment seen so far.
func (a *contentAccumulator) Reply() string {
	return a.reply.String()
}

// Role returns the reply author's role as stated by the upstream payload,
// defaulting to assistant.
func (a *contentAccumulator) Role() string {
	if a.role == "" {
		return "assistant"
	}
	return a.role
}

// Err returns the error message of a terminal error line, if one was seen.
func (a *contentAccumulator) Err() string {
	return a.errMsg
}

// Done reports whether a final chunk arrived. A stream that ends without
// one was cut off somewhere between the backend and us.
func (a *contentAccumulator) Done() bool {
	return a.done
}
