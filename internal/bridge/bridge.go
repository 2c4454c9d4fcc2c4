// Package bridge provides the websocket control endpoint the embedding UI
// process drives displays through. Each message is a JSON request carrying
// a UUID; the reply echoes the UUID so the caller can correlate responses
// over the single connection.
package bridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"plugview/internal/display"
	"plugview/internal/log"
	"plugview/internal/x11"
)

// StringMap represents a JSON object.
type StringMap map[string]any

// request is one control message from the UI process.
type request struct {
	Id      uuid.UUID       `json:"requestId"`
	Op      string          `json:"op"`
	Display int             `json:"display"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is the reply to a single request.
type response struct {
	Id    uuid.UUID `json:"requestId"`
	Ok    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
	Data  StringMap `json:"data,omitempty"`
}

// touchParams carries injectTouch arguments. Action values match the
// Android MotionEvent mapping: 0 down, 1 up, 2 move.
type touchParams struct {
	Action int `json:"action"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

type sizeParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type scaleParams struct {
	Scale float64 `json:"scale"`
}

type pointParams struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Bridge serves the control endpoint for a display registry.
type Bridge struct {
	reg *display.Registry
	log *log.Logger
	srv *http.Server
}

// New creates a bridge over the given registry.
func New(reg *display.Registry, logger *log.Logger) *Bridge {
	return &Bridge{reg: reg, log: logger}
}

// ListenAndServe serves the bridge on addr until Shutdown. Blocking.
func (b *Bridge) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "bridge listen %s", addr)
	}
	return b.Serve(ln)
}

// Serve serves the bridge on an existing listener. Blocking.
func (b *Bridge) Serve(ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	b.srv = &http.Server{Handler: mux}
	b.log.Info("bridge: listening on %s", ln.Addr())
	err := b.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and closes the live ones.
func (b *Bridge) Shutdown() {
	if b.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = b.srv.Shutdown(ctx)
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.Error("bridge: accept: %s", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")
	b.log.Info("bridge: client connected from %s", r.RemoteAddr)

	ctx := r.Context()
	for {
		var req request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				conn.Close(websocket.StatusNormalClosure, "")
			} else {
				b.log.Debug("bridge: read: %s", err)
			}
			return
		}
		resp := b.handle(req)
		if err := wsjson.Write(ctx, conn, &resp); err != nil {
			b.log.Debug("bridge: write: %s", err)
			return
		}
	}
}

// handle executes one operation against the registry.
func (b *Bridge) handle(req request) response {
	fail := func(err error) response {
		return response{Id: req.Id, Error: err.Error()}
	}
	ok := func(data StringMap) response {
		return response{Id: req.Id, Ok: true, Data: data}
	}

	switch req.Op {
	case "attachSurface":
		var p sizeParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(err)
		}
		d := b.reg.GetOrCreate(req.Display)
		if err := d.Attach(display.NewMemorySurface(), p.Width, p.Height); err != nil {
			return fail(err)
		}
		return ok(StringMap{"display": d.DisplayString()})

	case "detachSurface":
		status := b.reg.Destroy(req.Display)
		return ok(StringMap{"deferred": status == display.DetachDeferred})

	case "injectTouch":
		var p touchParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(err)
		}
		action, err := touchAction(p.Action)
		if err != nil {
			return fail(err)
		}
		b.reg.WithInjectTouch(req.Display, action, p.X, p.Y)
		return ok(nil)

	case "setSurfaceSize":
		var p sizeParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(err)
		}
		b.reg.WithSetSurfaceSize(req.Display, p.Width, p.Height)
		return ok(nil)

	case "requestFrame":
		b.reg.WithRequestFrame(req.Display)
		return ok(nil)

	case "getPluginSize":
		w, h, known := b.reg.WithGetPluginSize(req.Display)
		return ok(StringMap{"width": w, "height": h, "known": known})

	case "setUIScale":
		var p scaleParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(err)
		}
		b.reg.WithSetUIScale(req.Display, p.Scale)
		return ok(nil)

	case "isWidgetAtPoint":
		var p pointParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(err)
		}
		return ok(StringMap{"widget": b.reg.WithIsWidgetAtPoint(req.Display, p.X, p.Y)})

	default:
		return fail(errors.Errorf("unknown op %q", req.Op))
	}
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}
	return errors.Wrap(json.Unmarshal(raw, dst), "bad params")
}

func touchAction(action int) (x11.TouchAction, error) {
	switch action {
	case 0:
		return x11.TouchDown, nil
	case 1:
		return x11.TouchUp, nil
	case 2:
		return x11.TouchMove, nil
	default:
		return 0, errors.Errorf("unknown touch action %d", action)
	}
}
