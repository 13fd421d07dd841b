package cdrom

import (
	"log/slog"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/interrupt"
)

type driveState int

const (
	Idle driveState = iota
	Seeking
	Reading
	Playing
)

const (
	int1DataReady       = 1 << 0
	int2CommandComplete = 1 << 1
	int3Acknowledge     = 1 << 2
	int4CommandError    = 1 << 3
	int5SeekError       = 1 << 4
)

const (
	readCyclesSingleSpeed = 13300
	readCyclesDoubleSpeed = 7525
	seekCycles            = 100000
)

type status struct {
	err, motor, seekErr, idErr, shellOpen, reading, seeking, playing bool
}

func (s status) encode() uint8 {
	var v uint8
	if s.err {
		v |= 1 << 0
	}
	if s.motor {
		v |= 1 << 1
	}
	if s.seekErr {
		v |= 1 << 2
	}
	if s.idErr {
		v |= 1 << 3
	}
	if s.shellOpen {
		v |= 1 << 4
	}
	if s.reading {
		v |= 1 << 5
	}
	if s.seeking {
		v |= 1 << 6
	}
	if s.playing {
		v |= 1 << 7
	}
	return v
}

// Controller is the CD-ROM front-end: register interface, FIFOs, drive
// state, disc image, and read/seek timing.
type Controller struct {
	index uint8

	paramFIFO []uint8
	respFIFO  []uint8
	dataFIFO  []uint8

	intFlag   uint8
	intEnable uint8

	state    driveState
	st       status
	mode     uint8
	curPos   MSF
	seekTo   MSF
	playTrack int

	readCycleCounter int
	seekCycleCounter int

	disc *Image

	audio AudioSink

	irq *interrupt.Controller
	log *slog.Logger
}

// AudioSink receives decoded CD-DA stereo sample pairs; the System wires
// the SPU's CD mix input here.
type AudioSink interface {
	PushCDAudio(samples []int16)
}

func New(irq *interrupt.Controller, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{irq: irq, log: log, st: status{motor: true}}
}

// InsertDisc attaches a parsed disc image, clearing any prior shell-open
// condition.
func (c *Controller) InsertDisc(img *Image) {
	c.disc = img
	c.st.shellOpen = false
}

// SetAudioSink wires the consumer of CD-DA playback samples.
func (c *Controller) SetAudioSink(sink AudioSink) {
	c.audio = sink
}

func (c *Controller) ReadIO(offset uint32, width int) uint32 {
	switch offset {
	case 0:
		return uint32(c.readStatus())
	case 1:
		return uint32(c.readRegister1())
	case 2:
		return uint32(c.readRegister2())
	case 3:
		return uint32(c.readRegister3())
	default:
		return 0
	}
}

func (c *Controller) WriteIO(offset uint32, width int, value uint32) {
	switch offset {
	case 0:
		c.index = uint8(value) & 3
	case 1:
		c.writeRegister1(uint8(value))
	case 2:
		c.writeRegister2(uint8(value))
	case 3:
		c.writeRegister3(uint8(value))
	}
}

// readStatus is always available regardless of index: bit 0-1 index,
// bits report FIFO readiness.
func (c *Controller) readStatus() uint8 {
	var v uint8
	v |= c.index & 3
	if len(c.paramFIFO) == 0 {
		v |= 1 << 3
	}
	if len(c.paramFIFO) < 16 {
		v |= 1 << 4
	}
	if len(c.respFIFO) > 0 {
		v |= 1 << 5
	}
	if len(c.dataFIFO) > 0 {
		v |= 1 << 6
	}
	return v
}

func (c *Controller) readRegister1() uint8 {
	if len(c.respFIFO) == 0 {
		return 0
	}
	v := c.respFIFO[0]
	c.respFIFO = c.respFIFO[1:]
	return v
}

func (c *Controller) readRegister2() uint8 {
	if len(c.dataFIFO) == 0 {
		return 0
	}
	v := c.dataFIFO[0]
	c.dataFIFO = c.dataFIFO[1:]
	return v
}

func (c *Controller) readRegister3() uint8 {
	switch c.index {
	case 1:
		return c.intEnable
	default:
		return c.intFlag | 0xE0
	}
}

func (c *Controller) writeRegister1(v uint8) {
	switch c.index {
	case 0:
		c.execCommand(v)
	case 3:
		// right-cd-to-right-spu volume: accepted, not modeled further.
	}
}

func (c *Controller) writeRegister2(v uint8) {
	switch c.index {
	case 0:
		if len(c.paramFIFO) < 16 {
			c.paramFIFO = append(c.paramFIFO, v)
		}
	case 1:
		c.intEnable = v & 0x1F
	}
}

func (c *Controller) writeRegister3(v uint8) {
	switch c.index {
	case 1:
		c.acknowledgeInterrupt(v)
	}
}

// acknowledgeInterrupt implements the write-to-clear-flags semantics of
// spec.md section 4.7: writing w clears the selected bits of intFlag.
func (c *Controller) acknowledgeInterrupt(w uint8) {
	c.intFlag &^= w & 0x1F
}

func (c *Controller) popParams() []uint8 {
	p := c.paramFIFO
	c.paramFIFO = nil
	return p
}

func (c *Controller) pushResponse(bytes ...uint8) {
	c.respFIFO = append(c.respFIFO, bytes...)
}

// raiseInterrupt sets the given level and requests the CD-ROM interrupt
// line only if that level's bit is set in intEnable -- spec.md 4.7's "raises the
// line only if the corresponding bit is set in the interrupt-enable
// register".
func (c *Controller) raiseInterrupt(level uint8) {
	c.intFlag |= level
	if c.intEnable&level != 0 {
		c.irq.Request(addr.CDROM)
	}
}

// Tick advances read/seek timing by the given CPU cycle count. Called by
// System once per CPU step (spec.md section 4.7, "a per-step tick
// accumulator").
func (c *Controller) Tick(cycles int) {
	if c.state == Seeking {
		c.seekCycleCounter += cycles
		if c.seekCycleCounter >= seekCycles {
			c.seekCycleCounter = 0
			c.curPos = c.seekTo
			c.state = Idle
			c.st.seeking = false
			c.raiseInterrupt(int2CommandComplete)
		}
		return
	}
	if c.state == Reading || c.state == Playing {
		threshold := readCyclesSingleSpeed
		if c.mode&(1<<7) != 0 {
			threshold = readCyclesDoubleSpeed
		}
		c.readCycleCounter += cycles
		if c.readCycleCounter >= threshold {
			c.readCycleCounter -= threshold
			c.deliverSector()
		}
	}
}

func (c *Controller) deliverSector() {
	if c.disc == nil {
		return
	}
	sector, err := c.disc.ReadSector(c.curPos)
	if err != nil {
		c.st.err = true
		c.state = Idle
		c.st.reading = false
		c.st.playing = false
		c.raiseInterrupt(int5SeekError)
		return
	}

	switch c.state {
	case Reading:
		c.dataFIFO = append(c.dataFIFO[:0], sector...)
		c.raiseInterrupt(int1DataReady)
	case Playing:
		if c.audio != nil {
			if t := c.disc.trackFor(c.curPos.ToLBA()); t != nil && t.Type == Audio {
				c.audio.PushCDAudio(decodePCMSector(sector))
			}
		}
	}
	c.advancePosition()
}

// decodePCMSector reinterprets a raw 2352-byte audio sector as 588 stereo
// frames of little-endian signed 16-bit PCM.
func decodePCMSector(sector []byte) []int16 {
	samples := make([]int16, len(sector)/2)
	for i := range samples {
		samples[i] = int16(uint16(sector[i*2]) | uint16(sector[i*2+1])<<8)
	}
	return samples
}

func (c *Controller) advancePosition() {
	c.curPos.F++
	if c.curPos.F >= 75 {
		c.curPos.F = 0
		c.curPos.S++
		if c.curPos.S >= 60 {
			c.curPos.S = 0
			c.curPos.M++
		}
	}
}
