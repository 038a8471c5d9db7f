// Package engine speaks the line-delimited JSON request/response protocol on
// stdin/stdout and dispatches methods onto the capture coordinator.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"codeberg.org/mutker/capturectl/internal/capture"
	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/logger"
)

// EngineVersion identifies this engine build in ping/capability payloads.
const EngineVersion = "0.4.0"

const maxLineBytes = 1 << 20

// Defaults are applied when capture.start* requests omit parameters.
type Defaults struct {
	FrameRate  int
	Microphone bool
}

// Engine owns the request loop. Dispatch is serialized: one request at a
// time, in arrival order, matching how the shell drives the pipe.
type Engine struct {
	coordinator *capture.Coordinator
	provider    capture.Provider
	platform    string
	defaults    Defaults

	writeMu sync.Mutex
}

// New creates an engine over a coordinator and its capture provider.
func New(coordinator *capture.Coordinator, provider capture.Provider, platform string, defaults Defaults) *Engine {
	return &Engine{
		coordinator: coordinator,
		provider:    provider,
		platform:    platform,
		defaults:    defaults,
	}
}

// Run reads newline-delimited requests until the reader closes, writing one
// response line per request.
func (e *Engine) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		req, err := decodeRequest(line)
		if err != nil {
			e.writeResponse(w, failureFrom("unknown", err))
			continue
		}

		e.writeResponse(w, e.dispatch(ctx, req))
	}

	return scanner.Err()
}

func (e *Engine) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "system.ping":
		return success(req.ID, map[string]any{
			"app":             "capturectl",
			"engineVersion":   EngineVersion,
			"protocolVersion": ProtocolVersion,
			"platform":        e.platform,
		})
	case "engine.capabilities":
		return success(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"platform":        e.platform,
			"capture": map[string]any{
				"display":    true,
				"window":     true,
				"microphone": true,
			},
			"recording": map[string]any{
				"telemetry": true,
				"health":    true,
			},
		})
	case "sources.list":
		return e.handleSourcesList(req)
	case "capture.startDisplay":
		return e.handleStartCapture(ctx, req, capture.TargetDisplay, nil)
	case "capture.startCurrentWindow":
		return e.handleStartCapture(ctx, req, capture.TargetWindow, nil)
	case "capture.startWindow":
		return e.handleStartWindow(ctx, req)
	case "capture.stop":
		if err := e.coordinator.StopCapture(ctx); err != nil {
			return failureFrom(req.ID, err)
		}
		return success(req.ID, e.coordinator.StatusSnapshot())
	case "recording.start":
		status, err := e.coordinator.StartRecording()
		if err != nil {
			return failureFrom(req.ID, err)
		}
		return success(req.ID, status)
	case "recording.stop":
		if err := e.coordinator.StopRecording(ctx); err != nil {
			return failureFrom(req.ID, err)
		}
		return success(req.ID, e.coordinator.StatusSnapshot())
	case "capture.status":
		return success(req.ID, e.coordinator.StatusSnapshot())
	default:
		return failure(req.ID, errors.ErrUnsupportedMethod, "Unsupported method: "+req.Method)
	}
}

type sourceEntry struct {
	ID       uint64 `json:"id"`
	Title    string `json:"title,omitempty"`
	AppName  string `json:"appName,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	OnScreen bool   `json:"isOnScreen"`
}

func (e *Engine) handleSourcesList(req Request) Response {
	targets, err := e.provider.Targets()
	if err != nil {
		return failureFrom(req.ID, err)
	}

	displays := make([]sourceEntry, 0)
	windows := make([]sourceEntry, 0)
	for _, t := range targets {
		entry := sourceEntry{
			ID:       t.ID,
			Title:    t.Title,
			AppName:  t.AppName,
			Width:    t.Width,
			Height:   t.Height,
			OnScreen: t.OnScreen,
		}
		switch t.Kind {
		case capture.TargetDisplay:
			displays = append(displays, entry)
		case capture.TargetWindow:
			windows = append(windows, entry)
		}
	}

	return success(req.ID, map[string]any{
		"displays": displays,
		"windows":  windows,
	})
}

type startParams struct {
	FrameRate  *int    `json:"frameRate"`
	Microphone *bool   `json:"microphone"`
	WindowID   *uint64 `json:"windowId"`
}

func (e *Engine) handleStartCapture(ctx context.Context, req Request, kind capture.TargetKind, windowID *uint64) Response {
	params := startParams{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return failure(req.ID, errors.ErrInvalidRequest, "malformed params")
		}
	}

	target, err := e.pickTarget(kind, windowID)
	if err != nil {
		return failureFrom(req.ID, err)
	}

	frameRate := e.defaults.FrameRate
	if params.FrameRate != nil {
		frameRate = *params.FrameRate
	}
	microphone := e.defaults.Microphone
	if params.Microphone != nil {
		microphone = *params.Microphone
	}

	if err := e.coordinator.StartCapture(ctx, target, microphone, frameRate); err != nil {
		return failureFrom(req.ID, err)
	}

	return success(req.ID, e.coordinator.StatusSnapshot())
}

func (e *Engine) handleStartWindow(ctx context.Context, req Request) Response {
	params := startParams{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return failure(req.ID, errors.ErrInvalidRequest, "malformed params")
		}
	}
	if params.WindowID == nil {
		return failure(req.ID, errors.ErrInvalidParameter, "windowId is required")
	}

	return e.handleStartCapture(ctx, req, capture.TargetWindow, params.WindowID)
}

// pickTarget resolves the capture target: an explicit window id when given,
// otherwise the first enumerated target of the requested kind.
func (e *Engine) pickTarget(kind capture.TargetKind, windowID *uint64) (capture.Target, error) {
	errFactory := errors.New()

	targets, err := e.provider.Targets()
	if err != nil {
		return capture.Target{}, err
	}

	if windowID != nil {
		for _, t := range targets {
			if t.Kind == capture.TargetWindow && t.ID == *windowID {
				return t, nil
			}
		}
		return capture.Target{}, errFactory.WithData(errors.ErrNoSourceAvailable, *windowID)
	}

	for _, t := range targets {
		if t.Kind == kind {
			return t, nil
		}
	}

	return capture.Target{}, errFactory.New(errors.ErrNoSourceAvailable)
}

func (e *Engine) writeResponse(w io.Writer, resp Response) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	line, err := json.Marshal(resp)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
		return
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		logger.Error().Err(err).Msg("failed to write response")
	}
}
