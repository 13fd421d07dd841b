//go:build sdl2

// Package sdl2 implements a windowed video+audio host backend using SDL2
// bindings. Grounded on the teacher's SDL2 backend
// (jeebie/backend/sdl2/sdl2.go: a window/renderer/streaming-texture triple
// fed from FrameBuffer.ToSlice(), plus a queued AUDIO_S16LSB device fed
// from a sample provider) generalized from the Game Boy's fixed
// 160x144 mono framebuffer to the PSX's variable display resolution and
// stereo SPU output.
package sdl2

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/nullstep/psxgo/psx/pad"
	"github.com/nullstep/psxgo/psx/system"
	"github.com/veandco/go-sdl2/sdl"
)

const sampleRate = 44100

// Backend owns the SDL2 window, renderer, streaming texture, and queued
// audio device for one System.
type Backend struct {
	sys *system.System

	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture

	audioDevice sdl.AudioDeviceID

	width, height int
	running       bool

	log *slog.Logger
}

// New creates an uninitialized backend; call Init before Run.
func New(sys *system.System, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{sys: sys, log: log}
}

// Init opens the window, renderer, texture, and audio device, and wires
// the System's SPU output into a queued playback sample buffer.
func (b *Backend) Init() error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to initialize SDL2: %v", err)
	}

	b.width, b.height = b.sys.GPU.DisplayResolution()

	window, err := sdl.CreateWindow(
		"psxgo",
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		int32(b.width*2),
		int32(b.height*2),
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("failed to create window: %v", err)
	}
	b.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create renderer: %v", err)
	}
	b.renderer = renderer

	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_RGBA8888,
		sdl.TEXTUREACCESS_STREAMING,
		int32(b.width),
		int32(b.height),
	)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create texture: %v", err)
	}
	b.texture = texture

	if err := b.initAudio(); err != nil {
		return err
	}

	b.sys.SetAudioSink(b)
	b.running = true
	b.log.Info("sdl2 backend initialized", "width", b.width, "height", b.height)
	return nil
}

func (b *Backend) initAudio() error {
	spec := &sdl.AudioSpec{
		Freq:     sampleRate,
		Format:   sdl.AUDIO_S16LSB,
		Channels: 2,
		Samples:  512,
	}
	obtained := &sdl.AudioSpec{}
	dev, err := sdl.OpenAudioDevice("", false, spec, obtained, 0)
	if err != nil {
		return fmt.Errorf("failed to open audio device: %v", err)
	}
	b.audioDevice = dev
	sdl.PauseAudioDevice(b.audioDevice, false)
	return nil
}

// PushSamples satisfies spu.Sink: the SPU mixer calls this once per Step
// that produces samples, with every interleaved stereo pair of that Step.
func (b *Backend) PushSamples(samples []int16) {
	if b.audioDevice == 0 || len(samples) == 0 {
		return
	}
	bytes := (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[: len(samples)*2 : len(samples)*2]
	sdl.QueueAudio(b.audioDevice, bytes)
}

// Run drives the window's event loop and the emulator's frame loop until
// the user closes the window or presses Escape.
func (b *Backend) Run() error {
	defer b.Cleanup()

	for b.running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			b.handleEvent(event)
		}
		if !b.running {
			break
		}

		if err := b.sys.RunFrame(); err != nil {
			return err
		}
		b.present()
	}
	return nil
}

func (b *Backend) present() {
	pixels := b.sys.GPU.FrameRGBA()
	raw := (*[1 << 30]byte)(unsafe.Pointer(&pixels[0]))[: len(pixels)*4 : len(pixels)*4]
	_ = b.texture.Update(nil, raw, b.width*4)
	b.renderer.Clear()
	b.renderer.Copy(b.texture, nil, nil)
	b.renderer.Present()
}

func (b *Backend) handleEvent(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		b.running = false
	case *sdl.KeyboardEvent:
		mask, ok := buttonFor(e.Keysym.Sym)
		if !ok {
			if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
				b.running = false
			}
			return
		}
		b.applyButton(mask, e.Type == sdl.KEYDOWN)
	}
}

var currentButtons = pad.ButtonMask(0xFFFF)

func (b *Backend) applyButton(mask pad.ButtonMask, pressed bool) {
	if pressed {
		currentButtons &^= mask
	} else {
		currentButtons |= mask
	}
	b.sys.Controllers.Port0.SetButtons(currentButtons)
}

func buttonFor(key sdl.Keycode) (pad.ButtonMask, bool) {
	switch key {
	case sdl.K_UP:
		return pad.Up, true
	case sdl.K_DOWN:
		return pad.Down, true
	case sdl.K_LEFT:
		return pad.Left, true
	case sdl.K_RIGHT:
		return pad.Right, true
	case sdl.K_z:
		return pad.Cross, true
	case sdl.K_x:
		return pad.Circle, true
	case sdl.K_a:
		return pad.Square, true
	case sdl.K_s:
		return pad.Triangle, true
	case sdl.K_RETURN:
		return pad.Start, true
	case sdl.K_RSHIFT:
		return pad.Select, true
	default:
		return 0, false
	}
}

// Cleanup tears down SDL2 resources in reverse acquisition order.
func (b *Backend) Cleanup() {
	if b.audioDevice != 0 {
		sdl.CloseAudioDevice(b.audioDevice)
	}
	if b.texture != nil {
		b.texture.Destroy()
	}
	if b.renderer != nil {
		b.renderer.Destroy()
	}
	if b.window != nil {
		b.window.Destroy()
	}
	sdl.Quit()
}
