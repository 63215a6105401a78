// Package relay forwards chat requests to the inference backend, fans the
// response out to the caller, and hands completed exchanges to the recorder.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/history"
	"github.com/pmerrell/ollamadesk/internal/llm"
)

const defaultTemperature = 0.7

// SendRequest is one chat request after correlation ids have been resolved.
type SendRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	System      string
	SessionUID  string
	TurnUID     string
	// Provenance carries the caller's free-form passthrough fields; the
	// recorder stores them opaquely with the turn.
	Provenance map[string]any
}

type Relay struct {
	llm *llm.Client
	rec *history.Recorder
	log *zap.Logger
}

func New(client *llm.Client, rec *history.Recorder, log *zap.Logger) *Relay {
	return &Relay{llm: client, rec: rec, log: log}
}

func (r *Relay) chatRequest(req SendRequest) llm.ChatRequest {
	temp := req.Temperature
	// A literal 0 is indistinguishable from unset here; both fall back to
	// the default.
	if temp == 0 {
		temp = defaultTemperature
	}
	return llm.ChatRequest{
		Model:       req.Model,
		Messages:    []llm.Message{{Role: "user", Content: req.Prompt}},
		Temperature: temp,
		System:      req.System,
	}
}

// Send performs a non-streaming exchange. The turn is recorded before the
// merged upstream body is returned, so the handler only responds once the
// transcript write has run.
func (r *Relay) Send(ctx context.Context, req SendRequest) (map[string]any, error) {
	body, err := r.llm.Chat(ctx, r.chatRequest(req))
	if err != nil {
		return nil, err
	}

	reply, role := replyFromBody(body)
	r.record(ctx, req, reply, role)

	body["sessionUid"] = req.SessionUID
	body["chatUid"] = req.TurnUID
	return body, nil
}

// Stream pipes the upstream byte stream to w verbatim while concurrently
// reassembling the reply text. Only a stream that reaches its final chunk
// cleanly is recorded; a client abort, an upstream error line, or a stream
// truncated before the final chunk leaves no turn.
func (r *Relay) Stream(ctx context.Context, req SendRequest, w io.Writer) error {
	upstream, err := r.llm.Stream(ctx, r.chatRequest(req))
	if err != nil {
		return err
	}
	defer upstream.Close()

	flusher, _ := w.(http.Flusher)
	acc := newContentAccumulator(r.log)
	buf := make([]byte, 32*1024)

	for {
		n, readErr := upstream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := w.Write(chunk); werr != nil {
				// Client gone. Normal termination: nothing is recorded and
				// closing the upstream body propagates the cancellation.
				r.log.Info("client write failed, dropping stream",
					zap.String("chatUid", req.TurnUID), zap.Error(werr))
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
			acc.Write(chunk)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				r.log.Info("chat stream aborted",
					zap.String("chatUid", req.TurnUID))
				return nil
			}
			return fmt.Errorf("reading upstream stream: %w", readErr)
		}
	}

	acc.Flush()

	// A reply is only a transcript once the backend said it finished. An
	// error line or a stream cut off before the final chunk leaves no turn;
	// the client already saw the raw bytes and can decide what to do.
	if msg := acc.Err(); msg != "" {
		r.log.Warn("upstream failed mid-stream, dropping turn",
			zap.String("chatUid", req.TurnUID), zap.String("upstreamError", msg))
		return nil
	}
	if !acc.Done() {
		r.log.Warn("stream ended without a final chunk, dropping turn",
			zap.String("chatUid", req.TurnUID))
		return nil
	}

	r.record(ctx, req, acc.Reply(), acc.Role())
	return nil
}

// record hands a finished exchange to the recorder. By now the caller has
// its answer, so persistence failures are logged and swallowed rather than
// surfaced; the write runs on a context detached from client cancellation.
func (r *Relay) record(ctx context.Context, req SendRequest, reply, role string) {
	temp := req.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}
	_, err := r.rec.RecordTurn(context.WithoutCancel(ctx), history.RecordRequest{
		SessionUID:  req.SessionUID,
		TurnUID:     req.TurnUID,
		Prompt:      req.Prompt,
		Reply:       reply,
		Role:        role,
		Model:       req.Model,
		Temperature: temp,
		Provenance:  req.Provenance,
	})
	if err != nil {
		r.log.Error("recording turn failed",
			zap.String("sessionUid", req.SessionUID),
			zap.String("chatUid", req.TurnUID),
			zap.Error(err))
	}
}

func replyFromBody(body map[string]any) (reply, role string) {
	role = "assistant"
	msg, ok := body["message"].(map[string]any)
	if !ok {
		return "", role
	}
	if c, ok := msg["content"].(string); ok {
		reply = c
	}
	if r, ok := msg["role"].(string); ok && r != "" {
		role = r
	}
	return reply, role
}
