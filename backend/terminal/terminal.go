// Package terminal implements a text-mode host backend using tcell:
// a downsampled ANSI view of the GPU's current frame plus a status line,
// useful for headless-adjacent debug/inspect sessions. Grounded on the
// teacher's terminal renderer (root main.go's TerminalRenderer: a tcell
// screen driven by a frame ticker, shading each source pixel into one of
// four block characters) generalized from the Game Boy's fixed
// 160x144 grayscale framebuffer to the PSX's variable-resolution RGB
// display.
package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/nullstep/psxgo/psx/system"
)

const frameTime = time.Second / 60

// shadeChars goes from darkest to lightest, matching the teacher's choice.
var shadeChars = []rune{'█', '▓', '▒', '░'}

// Backend renders a System's GPU output as shaded terminal blocks.
type Backend struct {
	screen  tcell.Screen
	sys     *system.System
	running bool
	frames  uint64
	log     *slog.Logger
}

func New(sys *system.System, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}
	return &Backend{screen: screen, sys: sys, running: true, log: log}, nil
}

// Run drives the frame loop: one System.RunFrame per tick, then a render
// pass, until Escape is pressed or the process receives SIGINT/SIGTERM.
func (t *Backend) Run() error {
	defer func() {
		t.log.Info("finishing terminal backend")
		t.screen.Fini()
	}()

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	go t.handleInput()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for t.running {
		select {
		case <-ticker.C:
			if err := t.sys.RunFrame(); err != nil {
				return err
			}
			t.frames++
			t.render()
			t.screen.Show()
		case <-signals:
			t.running = false
			t.log.Info("received signal to stop")
			return nil
		}
	}
	return nil
}

func (t *Backend) handleInput() {
	for t.running {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape {
				t.running = false
				return
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *Backend) render() {
	pixels := t.sys.GPU.FrameRGBA()
	w, h := t.sys.GPU.DisplayResolution()

	t.screen.Clear()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := pixels[y*w+x]
			r, g, b := px>>24&0xFF, px>>16&0xFF, px>>8&0xFF
			brightness := (r + g + b) / 3
			shade := 3 - brightness/64
			if shade > 3 {
				shade = 3
			}
			t.screen.SetContent(x, y, shadeChars[shade], nil, tcell.StyleDefault.Foreground(tcell.ColorWhite))
		}
	}

	status := fmt.Sprintf("frame %d  pc=%08X", t.frames, t.sys.CPU.PC())
	for i, r := range status {
		t.screen.SetContent(i, h, r, nil, tcell.StyleDefault.Foreground(tcell.ColorYellow))
	}
}
