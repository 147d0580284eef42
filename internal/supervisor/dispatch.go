package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orangescada/opcua/internal/domain"
	"github.com/orangescada/opcua/internal/engine"
	"github.com/rs/zerolog"
)

// connHandler owns one accepted supervisor connection: line-delimited
// JSON framing, command dispatch, and the per-connection Batcher and
// transID counter.
type connHandler struct {
	conn   net.Conn
	engine *engine.Engine
	logger zerolog.Logger

	writeMu            sync.Mutex
	lastRequestTransID atomic.Int64

	batcher *Batcher
}

func newConnHandler(conn net.Conn, eng *engine.Engine, batchWindow time.Duration, logger zerolog.Logger) *connHandler {
	h := &connHandler{
		conn:   conn,
		engine: eng,
		logger: logger.With().Str("component", "supervisor-conn").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	h.batcher = NewBatcher(h, &h.lastRequestTransID, batchWindow, h.logger)
	return h
}

func (h *connHandler) writeFrame(v any) error {
	line, err := marshalLine(v)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err = h.conn.Write(line)
	return err
}

// dispatch parses one line and routes it to the matching engine
// operation. The connect handshake is accepted unconditionally; this
// bridge does not implement supervisor authentication policy.
func (h *connHandler) dispatch(ctx context.Context, line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		h.logger.Warn().Err(err).Msg("malformed frame, ignored")
		return
	}
	h.lastRequestTransID.Store(env.TransID)

	switch env.Cmd {
	case cmdConnect:
		h.handleConnect(line, env)
	case cmdGetTagsValues:
		h.handleGetTagsValues(ctx, line, env)
	case cmdSetTagsValues:
		h.handleSetTagsValues(ctx, line, env)
	case cmdPingDevice:
		h.handlePingDevice(ctx, line, env)
	case cmdUpdateTagListFromDevice:
		h.handleUpdateTagList(ctx, line, env)
	case cmdRestartDevice, cmdSetTag:
		h.handleRestartDevice(ctx, line, env)
	default:
		h.logger.Debug().Str("cmd", env.Cmd).Msg("unknown command, ignored")
	}
}

func (h *connHandler) handleConnect(line []byte, env envelope) {
	var req connectFrame
	_ = json.Unmarshal(line, &req)
	_ = h.writeFrame(connectResponse{Cmd: cmdConnect, TransID: env.TransID, Ok: true})
}

func (h *connHandler) handleGetTagsValues(ctx context.Context, line []byte, env envelope) {
	var req getTagsValuesRequest
	if err := json.Unmarshal(line, &req); err != nil {
		h.writeError(env.TransID, err)
		return
	}

	results, err := h.engine.Read(ctx, req.DeviceUID, req.Tags)
	if err != nil {
		h.writeError(env.TransID, err)
		return
	}

	values := make([]any, len(results))
	for i, r := range results {
		if r.Err != nil {
			values[i] = tagValueError{ErrorTxt: errorKind(r.Err)}
			continue
		}
		values[i] = r.Value
	}
	_ = h.writeFrame(getTagsValuesResponse{Cmd: cmdGetTagsValues, TransID: env.TransID, Values: values})
}

func (h *connHandler) handleSetTagsValues(ctx context.Context, line []byte, env envelope) {
	var req setTagsValuesRequest
	if err := json.Unmarshal(line, &req); err != nil {
		h.writeError(env.TransID, err)
		return
	}

	var writes []engine.WriteRequest
	for _, pair := range req.Tags {
		for name, value := range pair {
			writes = append(writes, engine.WriteRequest{TagName: name, SetValue: value})
		}
	}

	if err := h.engine.Write(ctx, req.DeviceUID, writes); err != nil {
		h.writeError(env.TransID, err)
		return
	}
	_ = h.writeFrame(setTagsValuesResponse{Cmd: cmdSetTagsValues, TransID: env.TransID})
}

func (h *connHandler) handlePingDevice(ctx context.Context, line []byte, env envelope) {
	var req pingDeviceRequest
	if err := json.Unmarshal(line, &req); err != nil {
		h.writeError(env.TransID, err)
		return
	}

	active, err := h.engine.Status(ctx, req.UID)
	if err != nil && !errors.Is(err, domain.ErrDeviceIDNotFound) {
		h.writeError(env.TransID, err)
		return
	}
	_ = h.writeFrame(pingDeviceResponse{Cmd: cmdPingDevice, TransID: env.TransID, Active: active})
}

func (h *connHandler) handleUpdateTagList(ctx context.Context, line []byte, env envelope) {
	var req updateTagListRequest
	if err := json.Unmarshal(line, &req); err != nil {
		h.writeError(env.TransID, err)
		return
	}

	// Browse runs in the background and this command gets no response.
	// Progress goes only to the handler the Browser was built with; no
	// progressFrame is written to this connection.
	go func() {
		if err := h.engine.Browse(context.Background(), req.DeviceUID); err != nil {
			h.logger.Warn().Err(err).Str("device", req.DeviceUID).Msg("browse failed")
		}
	}()
}

func (h *connHandler) handleRestartDevice(ctx context.Context, line []byte, env envelope) {
	var req restartDeviceRequest
	if err := json.Unmarshal(line, &req); err != nil {
		h.writeError(env.TransID, err)
		return
	}

	if err := h.engine.Restart(ctx, req.deviceUID()); err != nil {
		h.writeError(env.TransID, err)
		return
	}
	_ = h.writeFrame(restartDeviceResponse{Cmd: cmdRestartDevice, TransID: env.TransID})
}

func (h *connHandler) writeError(transID int64, err error) {
	_ = h.writeFrame(errorResponse{Cmd: "error", TransID: transID, ErrorTxt: errorKind(err)})
}

// errorKind maps a sentinel error to its wire string token.
// Kept out of internal/domain so the wire representation does not leak
// into the engine.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrDeviceIDNotFound):
		return "DeviceIdNotFound"
	case errors.Is(err, domain.ErrTagNotFound):
		return "TagNotFound"
	case errors.Is(err, domain.ErrTagNotWriteable):
		return "TagNotWriteable"
	case errors.Is(err, domain.ErrConfigError):
		return "ConfigError"
	case errors.Is(err, domain.ErrEmptySession):
		return "EmptySession"
	case errors.Is(err, domain.ErrWriteFail):
		return "WriteFail"
	case errors.Is(err, domain.ErrOpcReject):
		return "OpcReject"
	case errors.Is(err, domain.ErrHostClose):
		return "HostClose"
	case errors.Is(err, domain.ErrSubscriptionTerminated):
		return "SubscriptionTerminated"
	case errors.Is(err, domain.ErrRestartOnChangeParams):
		return "RestartOnChangeParams"
	default:
		return "WriteFail"
	}
}
