// Package ebiten implements an alternative video+audio host backend: an
// ebiten.Game uploading the GPU's current frame each Draw, paired with an
// oto player fed from a mutex-guarded sample buffer the SPU mixer writes into.
// Grounded on two pack repos: the ebiten.Game shape (bdwalton-gintendo's
// console.Bus: Layout/Draw/Update driving a pixel-by-pixel image upload)
// and the oto ring-buffer player (IntuitionAmiga-IntuitionEngine's
// audio_backend_oto.go: an atomic.Pointer-guarded ring the Read callback
// drains, so the audio thread never blocks on the emulation thread).
package ebiten

import (
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/nullstep/psxgo/psx/pad"
	"github.com/nullstep/psxgo/psx/system"
)

const sampleRate = 44100

// ringSink is an io.Reader-compatible sample queue: SPU.Step calls
// PushSamples from the emulation goroutine, oto's mixer calls Read from
// its own.
type ringSink struct {
	mu  sync.Mutex
	buf []int16
}

func (r *ringSink) PushSamples(samples []int16) {
	r.mu.Lock()
	r.buf = append(r.buf, samples...)
	const maxBuffered = sampleRate * 2 // cap at ~1s of stereo audio
	if len(r.buf) > maxBuffered {
		r.buf = r.buf[len(r.buf)-maxBuffered:]
	}
	r.mu.Unlock()
}

func (r *ringSink) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := len(p) / 2
	if want > len(r.buf) {
		want = len(r.buf)
	}
	for i := 0; i < want; i++ {
		p[i*2] = byte(r.buf[i])
		p[i*2+1] = byte(r.buf[i] >> 8)
	}
	for i := want * 2; i < len(p); i++ {
		p[i] = 0 // underrun: pad with silence rather than stall oto
	}
	r.buf = r.buf[want:]
	return len(p), nil
}

// Game implements ebiten.Game against a System.
type Game struct {
	sys    *system.System
	sink   *ringSink
	otoCtx *oto.Context
	player *oto.Player

	width, height int
	image         *ebiten.Image

	buttons pad.ButtonMask

	log *slog.Logger
}

// New wires the oto audio context and returns a ready-to-run Game; call
// ebiten.RunGame(g) to start the window loop.
func New(sys *system.System, log *slog.Logger) (*Game, error) {
	if log == nil {
		log = slog.Default()
	}
	g := &Game{sys: sys, sink: &ringSink{}, buttons: 0xFFFF, log: log}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	g.otoCtx = ctx
	g.player = ctx.NewPlayer(g.sink)
	g.player.Play()

	sys.SetAudioSink(g.sink)

	g.width, g.height = sys.GPU.DisplayResolution()
	g.image = ebiten.NewImage(g.width, g.height)
	ebiten.SetWindowSize(g.width*2, g.height*2)
	ebiten.SetWindowTitle("psxgo")

	return g, nil
}

// Layout returns the PSX display's native resolution; ebiten scales the
// window around it.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.sys.GPU.DisplayResolution()
}

// Update drives one frame of emulation per ebiten tick and samples the
// keyboard into the controller port's button mask.
func (g *Game) Update() error {
	g.pollKeys()
	g.sys.Controllers.Port0.SetButtons(g.buttons)
	return g.sys.RunFrame()
}

// Draw uploads the GPU's current frame into the ebiten image.
func (g *Game) Draw(screen *ebiten.Image) {
	w, h := g.sys.GPU.DisplayResolution()
	if w != g.width || h != g.height {
		g.width, g.height = w, h
		g.image = ebiten.NewImage(w, h)
	}

	pixels := g.sys.GPU.FrameRGBA()
	raw := make([]byte, len(pixels)*4)
	for i, px := range pixels {
		raw[i*4+0] = byte(px >> 24)
		raw[i*4+1] = byte(px >> 16)
		raw[i*4+2] = byte(px >> 8)
		raw[i*4+3] = byte(px)
	}
	g.image.WritePixels(raw)
	screen.DrawImage(g.image, nil)
}

func (g *Game) pollKeys() {
	mask := pad.ButtonMask(0xFFFF)
	press := func(key ebiten.Key, b pad.ButtonMask) {
		if ebiten.IsKeyPressed(key) {
			mask &^= b
		}
	}
	press(ebiten.KeyArrowUp, pad.Up)
	press(ebiten.KeyArrowDown, pad.Down)
	press(ebiten.KeyArrowLeft, pad.Left)
	press(ebiten.KeyArrowRight, pad.Right)
	press(ebiten.KeyZ, pad.Cross)
	press(ebiten.KeyX, pad.Circle)
	press(ebiten.KeyA, pad.Square)
	press(ebiten.KeyS, pad.Triangle)
	press(ebiten.KeyEnter, pad.Start)
	press(ebiten.KeyShiftRight, pad.Select)
	g.buttons = mask
}

// Close releases the oto player and context.
func (g *Game) Close() {
	if g.player != nil {
		g.player.Close()
	}
}
