// Package server owns the UNIX socket surface: the listener, the
// per-connection lifecycle, and the command dispatcher that routes framed
// JSON requests to engine operations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/cathedral/nova/internal/audit"
	"github.com/cathedral/nova/internal/engine"
	"github.com/cathedral/nova/internal/llm"
	"github.com/cathedral/nova/internal/otel"
)

// Reply and error sigils. Error replies always carry a kind token after the
// sigil so CLI callers can pattern-match without parsing JSON.
const (
	ReplySigil = "◆ Nova: "
	ErrorSigil = "✗ "
)

const availableCommands = "status, conversation, memory, evolve, heartbeat, bridge_send, bridge_check, speak, plugin, query, entities, shutdown"

// request is the wire shape of one framed command. Pointer fields
// distinguish a missing key from an empty value.
type request struct {
	Command     string          `json:"command"`
	Text        *string         `json:"text"`
	MessageType *string         `json:"message_type"`
	Content     json.RawMessage `json:"content"`
	Request     *string         `json:"request"`
	Priority    *string         `json:"priority"`
	Name        *string         `json:"name"`
	Input       map[string]any  `json:"input"`
	Prompt      *string         `json:"prompt"`
	Limit       *int            `json:"limit"`
}

// Dispatcher decodes requests and routes them to the engine.
type Dispatcher struct {
	engine   *engine.Engine
	requests *audit.Log
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *otel.Metrics
	shutdown func()
}

// NewDispatcher builds a Dispatcher. shutdown is invoked after the reply to
// a shutdown command has been flushed.
func NewDispatcher(eng *engine.Engine, requests *audit.Log, logger *slog.Logger, tracer trace.Tracer, metrics *otel.Metrics, shutdown func()) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		engine:   eng,
		requests: requests,
		logger:   logger,
		tracer:   tracer,
		metrics:  metrics,
		shutdown: shutdown,
	}
}

func protocolError(format string, args ...any) string {
	return ErrorSigil + "ProtocolError: " + fmt.Sprintf(format, args...)
}

func storeError(err error) string {
	return ErrorSigil + "StoreError: " + err.Error()
}

func bridgeError(err error) string {
	return ErrorSigil + "BridgeError: " + err.Error()
}

func externalError(detail string) string {
	return ErrorSigil + "ExternalError: " + detail
}

func isErrorReply(reply string) bool {
	return strings.HasPrefix(reply, ErrorSigil)
}

// Dispatch handles one framed request and returns the reply plus an
// optional hook the server runs after the reply is flushed.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (string, func()) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		d.record("", "error", "invalid message format")
		return protocolError("invalid message format"), nil
	}
	if strings.TrimSpace(req.Command) == "" {
		d.record("", "error", "missing field: command")
		return protocolError("missing field: command"), nil
	}

	if d.tracer != nil {
		var span trace.Span
		ctx, span = otel.StartServerSpan(ctx, d.tracer, "command."+req.Command, otel.AttrCommand.String(req.Command))
		defer span.End()
	}

	reply, after := d.handle(ctx, req)

	outcome := "ok"
	if isErrorReply(reply) {
		outcome = "error"
		if d.metrics != nil {
			d.metrics.CommandErrors.Add(ctx, 1)
		}
	}
	if d.metrics != nil {
		d.metrics.CommandsHandled.Add(ctx, 1)
	}
	d.record(req.Command, outcome, detailFor(req))
	return reply, after
}

// detailFor picks the loggable payload of a request.
func detailFor(req request) string {
	switch {
	case req.Text != nil:
		return *req.Text
	case req.Prompt != nil:
		return *req.Prompt
	case req.MessageType != nil:
		return *req.MessageType
	case req.Name != nil:
		return *req.Name
	default:
		return ""
	}
}

func (d *Dispatcher) record(command, outcome, detail string) {
	d.requests.Record(command, outcome, detail)
}

func (d *Dispatcher) handle(ctx context.Context, req request) (string, func()) {
	switch req.Command {
	case "status":
		return d.asJSON(d.engine.Status(ctx)), nil

	case "conversation":
		if req.Text == nil {
			return protocolError("missing field: text"), nil
		}
		reply, err := d.engine.Converse(ctx, *req.Text)
		if err != nil {
			return storeError(err), nil
		}
		return ReplySigil + reply, nil

	case "memory":
		return d.asJSON(d.engine.MemoryStatus(ctx)), nil

	case "evolve":
		report, err := d.engine.Evolve(ctx)
		if err != nil {
			return storeError(err), nil
		}
		return report, nil

	case "heartbeat":
		ack, err := d.engine.EmitHeartbeat(ctx)
		if err != nil {
			return storeError(err), nil
		}
		return ack, nil

	case "bridge_send":
		if req.MessageType == nil {
			return protocolError("missing field: message_type"), nil
		}
		if req.Content == nil {
			return protocolError("missing field: content"), nil
		}
		var content any
		if err := json.Unmarshal(req.Content, &content); err != nil {
			return protocolError("field content is not valid JSON"), nil
		}
		var reqPrompt, priority string
		if req.Request != nil {
			reqPrompt = *req.Request
		}
		if req.Priority != nil {
			priority = *req.Priority
		}
		file, err := d.engine.BridgeSend(ctx, *req.MessageType, content, reqPrompt, priority)
		if err != nil {
			return bridgeError(err), nil
		}
		if d.metrics != nil {
			d.metrics.BridgeSent.Add(ctx, 1)
		}
		return fmt.Sprintf("Message sent through bridge: %s", file), nil

	case "bridge_check":
		limit := 0
		if req.Limit != nil {
			limit = *req.Limit
		}
		replies, err := d.engine.BridgeCheck(limit)
		if err != nil {
			return bridgeError(err), nil
		}
		if len(replies) == 0 {
			return "[]", nil
		}
		return d.asJSON(replies, nil), nil

	case "speak":
		if req.Text == nil {
			return protocolError("missing field: text"), nil
		}
		return "Voice result: " + d.engine.Speak(ctx, *req.Text), nil

	case "plugin":
		if req.Name == nil {
			return protocolError("missing field: name"), nil
		}
		out, err := d.engine.Plugin(ctx, *req.Name, req.Input)
		if err != nil {
			return protocolError("%s", err.Error()), nil
		}
		return d.asJSON(out, nil), nil

	case "query":
		if req.Prompt == nil {
			return protocolError("missing field: prompt"), nil
		}
		answer, err := d.engine.Query(ctx, *req.Prompt)
		if errors.Is(err, llm.ErrUnavailable) {
			return externalError("unavailable"), nil
		}
		if err != nil {
			return externalError(shortError(err)), nil
		}
		return "◆ Claude: " + answer, nil

	case "entities":
		entities, err := d.engine.Entities(ctx)
		if err != nil {
			return storeError(err), nil
		}
		if len(entities) == 0 {
			return "[]", nil
		}
		return d.asJSON(entities, nil), nil

	case "shutdown":
		return "Nova consciousness entering rest", d.shutdown

	default:
		return protocolError("Unknown command: %s. Available: %s", req.Command, availableCommands), nil
	}
}

// asJSON renders a handler result, mapping errors to the store error reply.
func (d *Dispatcher) asJSON(v any, err error) string {
	if err != nil {
		return storeError(err)
	}
	data, mErr := json.MarshalIndent(v, "", "  ")
	if mErr != nil {
		d.logger.Error("marshal reply", "error", mErr)
		return storeError(mErr)
	}
	return string(data)
}

func shortError(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
