package bridge

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"plugview/internal/display"
	"plugview/internal/log"
)

const testDisplay = 9300

func startTestBridge(t *testing.T) string {
	t.Helper()
	reg := display.NewRegistry(log.NewDiscardLogger(), display.Options{
		IdleInterval: time.Millisecond,
	})
	t.Cleanup(reg.Shutdown)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	b := New(reg, log.NewDiscardLogger())
	go b.Serve(ln)
	t.Cleanup(b.Shutdown)
	return ln.Addr().String()
}

func dialBridge(t *testing.T, addr string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, op string, disp int, params StringMap) response {
	t.Helper()
	id := uuid.New()
	req := StringMap{"requestId": id, "op": op, "display": disp}
	if params != nil {
		req["params"] = params
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("write %s: %s", op, err)
	}
	var resp response
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("read %s reply: %s", op, err)
	}
	if resp.Id != id {
		t.Fatalf("%s reply id = %s, want %s", op, resp.Id, id)
	}
	return resp
}

func TestBridgeAttachLifecycle(t *testing.T) {
	addr := startTestBridge(t)
	conn, ctx := dialBridge(t, addr)

	resp := roundTrip(t, ctx, conn, "attachSurface", testDisplay,
		StringMap{"width": 800, "height": 600})
	if !resp.Ok {
		t.Fatalf("attach failed: %s", resp.Error)
	}
	if got := resp.Data["display"]; got != fmt.Sprintf("127.0.0.1:%d", testDisplay) {
		t.Fatalf("display string = %v", got)
	}

	// No plugin has connected: size unknown.
	resp = roundTrip(t, ctx, conn, "getPluginSize", testDisplay, nil)
	if !resp.Ok || resp.Data["known"] != false {
		t.Fatalf("getPluginSize = %+v", resp)
	}

	// Touch and frame ops succeed even with no client attached yet.
	resp = roundTrip(t, ctx, conn, "injectTouch", testDisplay,
		StringMap{"action": 0, "x": 10, "y": 10})
	if !resp.Ok {
		t.Fatalf("injectTouch failed: %s", resp.Error)
	}
	resp = roundTrip(t, ctx, conn, "requestFrame", testDisplay, nil)
	if !resp.Ok {
		t.Fatalf("requestFrame failed: %s", resp.Error)
	}
	resp = roundTrip(t, ctx, conn, "isWidgetAtPoint", testDisplay,
		StringMap{"x": 10, "y": 10})
	if !resp.Ok || resp.Data["widget"] != false {
		t.Fatalf("isWidgetAtPoint = %+v", resp)
	}

	resp = roundTrip(t, ctx, conn, "detachSurface", testDisplay, nil)
	if !resp.Ok || resp.Data["deferred"] != false {
		t.Fatalf("detach = %+v", resp)
	}
}

func TestBridgeErrors(t *testing.T) {
	addr := startTestBridge(t)
	conn, ctx := dialBridge(t, addr)

	resp := roundTrip(t, ctx, conn, "rewireFluxCapacitor", 0, nil)
	if resp.Ok || resp.Error == "" {
		t.Fatalf("unknown op accepted: %+v", resp)
	}

	// Bad params fail the request, not the connection.
	resp = roundTrip(t, ctx, conn, "injectTouch", 0, StringMap{"action": 9})
	if resp.Ok {
		t.Fatal("bad touch action accepted")
	}
	resp = roundTrip(t, ctx, conn, "setUIScale", 0, nil)
	if resp.Ok {
		t.Fatal("missing params accepted")
	}

	// Double attach on one display number is refused.
	resp = roundTrip(t, ctx, conn, "attachSurface", testDisplay+1,
		StringMap{"width": 100, "height": 100})
	if !resp.Ok {
		t.Fatalf("attach failed: %s", resp.Error)
	}
	resp = roundTrip(t, ctx, conn, "attachSurface", testDisplay+1,
		StringMap{"width": 100, "height": 100})
	if resp.Ok {
		t.Fatal("double attach accepted")
	}
}
