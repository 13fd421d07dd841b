// Package system wires every component into the single root object that
// owns them: the Bus, the CPU, the icache, and every memory-mapped
// device, plus the event scheduler that paces them. Grounded on the
// teacher's top-level emulator struct (jeebie/hardware.go: a Hardware
// type embedding CPU, MMU, and peripheral structs behind one RunFrame
// entry point) generalized from the Game Boy's fixed four-peripheral set
// to the PSX's seven-device bus plus DMA engine.
package system

import (
	"log/slog"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/cdrom"
	"github.com/nullstep/psxgo/psx/cpu"
	"github.com/nullstep/psxgo/psx/dma"
	"github.com/nullstep/psxgo/psx/events"
	"github.com/nullstep/psxgo/psx/interrupt"
	"github.com/nullstep/psxgo/psx/loader"
	"github.com/nullstep/psxgo/psx/memory"
	"github.com/nullstep/psxgo/psx/pad"
	"github.com/nullstep/psxgo/psx/spu"
	"github.com/nullstep/psxgo/psx/timer"
	"github.com/nullstep/psxgo/psx/video"
)

// cyclesPerFrameNTSC is 33.8688 MHz / 60 Hz, per spec.md section 4.11.
const cyclesPerFrameNTSC = 564_480

// System is the single point of mutability for the whole machine: every
// device lives here, and the Bus holds only references into it.
type System struct {
	Bus    *memory.Bus
	ICache *memory.ICache
	CPU    *cpu.CPU

	Interrupt   *interrupt.Controller
	DMA         *dma.Controller
	GPU         *video.GPU
	CDROM       *cdrom.Controller
	Timers      *timer.Controller
	SPU         *spu.SPU
	Controllers *pad.Controllers

	sched *events.Manager

	vblankEvent events.Handle

	log *slog.Logger
}

// New assembles a fully wired System: the Bus's device fields and the
// DMA controller's per-channel endpoints are all set before return.
func New(log *slog.Logger) *System {
	if log == nil {
		log = slog.Default()
	}

	bus := memory.New(log)
	icache := memory.NewICache()
	irq := interrupt.New()
	sched := events.New(log)

	s := &System{
		Bus:         bus,
		ICache:      icache,
		Interrupt:   irq,
		GPU:         video.New(log),
		CDROM:       cdrom.New(irq, log),
		Timers:      timer.New(irq, log),
		SPU:         spu.New(log),
		Controllers: pad.NewControllers(log),
		sched:       sched,
		log:         log,
	}
	s.DMA = dma.New(bus, irq, log)
	s.CPU = cpu.New(bus, icache, irq, log)

	s.DMA.SetEndpoint(addr.DMAGPU, s.GPU)
	s.DMA.SetEndpoint(addr.DMACDROM, s.CDROM)
	s.DMA.SetEndpoint(addr.DMASPU, s.SPU)

	s.CDROM.SetAudioSink(s.SPU)

	bus.Controllers = s.Controllers
	bus.Interrupt = s.Interrupt
	bus.DMA = s.DMA
	bus.Timers = s.Timers
	bus.CDROM = s.CDROM
	bus.GPU = s.GPU
	bus.SPU = s.SPU

	s.vblankEvent = sched.Register("vblank", cyclesPerFrameNTSC)
	sched.Schedule(s.vblankEvent, cyclesPerFrameNTSC)

	return s
}

// LoadBIOS installs the 512 KB BIOS image.
func (s *System) LoadBIOS(data []byte) error {
	return s.Bus.LoadBIOS(data)
}

// InsertDisc mounts a CD image for the CD-ROM controller.
func (s *System) InsertDisc(img *cdrom.Image) {
	s.CDROM.InsertDisc(img)
}

// SetAudioSink wires the SPU's output to a host audio consumer.
func (s *System) SetAudioSink(sink spu.Sink) {
	s.SPU.SetSink(sink)
}

// LoadEXE copies a parsed PSX-EXE's load image into RAM and redirects the
// CPU to its entry point, per spec.md section 6. Since BIOS shell
// emulation is out of scope, this is the side-loading path a headless
// run uses in place of a real disc boot.
func (s *System) LoadEXE(exe *loader.Executable) {
	for i, b := range exe.Data {
		_ = s.Bus.Write8(exe.LoadAddr+uint32(i), b)
	}
	s.CPU.SetPC(exe.PC)
	if exe.GP != 0 {
		s.CPU.SetReg(28, exe.GP) // $gp
	}
	sp := exe.StackBase + exe.StackOff
	if sp != 0 {
		s.CPU.SetReg(29, sp) // $sp
		s.CPU.SetReg(30, sp) // $fp
	}
}

// Step executes exactly one instruction and advances every timing-
// sensitive subsystem by its cost, per spec.md section 4.11's five-part
// step algorithm.
func (s *System) Step() error {
	cycles, err := s.CPU.Step()
	if err != nil {
		return err
	}

	s.sched.AddCycles(uint64(cycles))
	s.Bus.DrainCoherence(s.ICache)

	s.Timers.Tick(cycles)
	s.CDROM.Tick(cycles)
	s.SPU.Step(cycles)

	if s.sched.ShouldRunEvents() {
		for _, h := range s.sched.RunEvents() {
			s.dispatchEvent(h)
		}
	}

	return nil
}

// dispatchEvent handles a fired scheduler handle. Only vblank is
// registered today; CD-ROM and timer timing run on the simpler per-step
// Tick(cycles) path rather than through the scheduler, per DESIGN.md's
// "Scheduler vs. per-step Tick" note.
func (s *System) dispatchEvent(h events.Handle) {
	if h == s.vblankEvent {
		s.Interrupt.Request(addr.VBLANK)
		s.sched.Schedule(s.vblankEvent, cyclesPerFrameNTSC)
	}
}

// RunFrame sets a frame target of one NTSC frame's worth of cycles and
// steps the machine until it's reached, per spec.md section 4.11.
func (s *System) RunFrame() error {
	s.sched.SetFrameTarget(cyclesPerFrameNTSC)
	for !s.sched.ShouldExitLoop() {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunInstructions steps the machine a fixed number of instructions,
// ignoring the frame target. Used by the headless CLI's bounded-run mode.
func (s *System) RunInstructions(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}
