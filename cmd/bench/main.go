// This program serves as a simple benchmarker and smoke test for a running
// plugview display. It plays the role of a plugin UI: it connects over the
// X11 socket, creates a window and pumps PutImage frames at the server,
// reporting the achieved throughput.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

type Options struct {
	Display    int
	Frames     int
	Width      int
	Height     int
	VerifyRead bool
}

func main() {
	opts := Options{}
	flag.IntVar(
		&opts.Display,
		"display",
		10,
		"The display number to connect to (port 6000+N).",
	)
	flag.IntVar(
		&opts.Frames,
		"frames",
		300,
		"The number of full-window frames to push.",
	)
	flag.IntVar(
		&opts.Width,
		"width",
		400,
		"The window width.",
	)
	flag.IntVar(
		&opts.Height,
		"height",
		300,
		"The window height.",
	)
	flag.BoolVar(
		&opts.VerifyRead,
		"verify",
		true,
		"Whether to read a frame back with GetImage and compare.",
	)
	flag.Parse()
	os.Exit(run(opts))
}

func run(opts Options) int {
	conn, err := xgb.NewConnDisplay(fmt.Sprintf("127.0.0.1:%d", opts.Display))
	if err != nil {
		fmt.Println(err)
		return 1
	}
	defer conn.Close()
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	err = xproto.CreateWindowChecked(
		conn, screen.RootDepth, wid, screen.Root,
		0, 0, uint16(opts.Width), uint16(opts.Height), 0,
		xproto.WindowClassInputOutput, screen.RootVisual, 0, nil,
	).Check()
	if err != nil {
		fmt.Println(err)
		return 1
	}
	xproto.MapWindow(conn, wid)

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	xproto.CreateGC(conn, gc, xproto.Drawable(wid), 0, nil)

	// PutImage rows are chunked to stay under the advertised maximum
	// request length, the way Xlib does without BigRequests.
	maxBytes := int(setup.MaximumRequestLength)*4 - 28
	rowBytes := opts.Width * 4
	rowsPerChunk := maxBytes / rowBytes
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	frame := make([]byte, rowBytes*opts.Height)
	start := time.Now()
	for i := 0; i < opts.Frames; i++ {
		paint(frame, opts.Width, opts.Height, i)
		for y := 0; y < opts.Height; y += rowsPerChunk {
			rows := rowsPerChunk
			if y+rows > opts.Height {
				rows = opts.Height - y
			}
			xproto.PutImage(
				conn, xproto.ImageFormatZPixmap, xproto.Drawable(wid), gc,
				uint16(opts.Width), uint16(rows), 0, int16(y),
				0, screen.RootDepth, frame[y*rowBytes:(y+rows)*rowBytes],
			)
		}
	}
	// A round trip flushes everything buffered before the clock stops.
	if _, err := xproto.GetGeometry(conn, xproto.Drawable(wid)).Reply(); err != nil {
		fmt.Println(err)
		return 1
	}
	elapsed := time.Since(start)

	mb := float64(len(frame)*opts.Frames) / (1024 * 1024)
	fmt.Printf(
		"%d frames of %dx%d in %s (%.1f fps, %.1f MiB/s)\n",
		opts.Frames, opts.Width, opts.Height, elapsed.Round(time.Millisecond),
		float64(opts.Frames)/elapsed.Seconds(), mb/elapsed.Seconds(),
	)

	if opts.VerifyRead {
		reply, err := xproto.GetImage(
			conn, xproto.ImageFormatZPixmap, xproto.Drawable(wid),
			0, 0, uint16(opts.Width), uint16(opts.Height), 0xFFFFFFFF,
		).Reply()
		if err != nil {
			fmt.Println(err)
			return 1
		}
		bad := 0
		for i := 0; i+3 < len(reply.Data) && i+3 < len(frame); i += 4 {
			// Alpha is forced opaque server-side; compare color only.
			if reply.Data[i] != frame[i] || reply.Data[i+1] != frame[i+1] ||
				reply.Data[i+2] != frame[i+2] {
				bad++
			}
		}
		if bad != 0 {
			fmt.Printf("verify: %d mismatched pixels\n", bad)
			return 1
		}
		fmt.Println("verify: GetImage matches")
	}
	return 0
}

// paint fills the frame with a moving gradient so every frame differs.
func paint(frame []byte, w, h, tick int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			frame[o+0] = byte(x + tick) // B
			frame[o+1] = byte(y + tick) // G
			frame[o+2] = byte(tick)     // R
			frame[o+3] = 0xFF
		}
	}
}
