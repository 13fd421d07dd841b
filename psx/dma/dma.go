// Package dma implements the seven-channel DMA controller: register
// decode, per-channel block/linked-list transfer semantics, and the DICR
// master-flag/IRQ logic. Grounded on the teacher's register-bag devices
// (jeebie/memory/mem.go's per-region dispatch) generalized from a single
// flat I/O switch to a per-channel register file.
package dma

import (
	"log/slog"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/interrupt"
	"github.com/nullstep/psxgo/psx/memory"
)

// Endpoint is the device side of a DMA transfer: the GPU, CD-ROM, and SPU
// packages each implement this for their fixed channel.
type Endpoint interface {
	// DMARead returns the next word the channel should write into RAM
	// (device-to-RAM direction).
	DMARead() uint32
	// DMAWrite accepts a word the channel read from RAM (RAM-to-device
	// direction).
	DMAWrite(word uint32)
}

type channel struct {
	madr uint32
	bcr  uint32
	chcr uint32
}

const (
	chcrDirection = 1 << 0
	chcrDecrement = 1 << 1
	chcrChopping  = 1 << 8
	chcrSyncShift = 9
	chcrSyncMask  = 0x3
	chcrEnable    = 1 << 24
	chcrTrigger   = 1 << 28
)

// Controller owns all seven channel register sets and the shared
// DPCR/DICR registers. It holds no device state of its own -- endpoints
// are supplied by System, per spec.md section 9's "Bus holds no device
// state" rule generalized to DMA's device-facing side.
type Controller struct {
	channels [addr.DMAChannelCount]channel
	dpcr     uint32
	dicr     uint32

	endpoints [addr.DMAChannelCount]Endpoint

	bus *memory.Bus
	irq *interrupt.Controller
	log *slog.Logger
}

func New(bus *memory.Bus, irq *interrupt.Controller, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{bus: bus, irq: irq, log: log}
	c.dpcr = 0x0765_4321
	return c
}

// SetEndpoint wires the device behind a fixed channel. Channels without a
// real endpoint (MDEC in/out, PIO) are left nil: a block transfer to the
// device discards the words it reads, and one from the device writes zero
// words into RAM.
func (c *Controller) SetEndpoint(ch addr.DMAChannel, ep Endpoint) {
	c.endpoints[ch] = ep
}

func (c *Controller) ReadIO(offset uint32, width int) uint32 {
	switch {
	case offset < 0x70:
		ch := offset / 0x10
		reg := offset % 0x10
		return c.readChannel(addr.DMAChannel(ch), reg)
	case offset == 0x70:
		return c.dpcr
	case offset == 0x74:
		return c.computeDICR()
	default:
		return 0
	}
}

func (c *Controller) WriteIO(offset uint32, width int, value uint32) {
	switch {
	case offset < 0x70:
		ch := offset / 0x10
		reg := offset % 0x10
		c.writeChannel(addr.DMAChannel(ch), reg, value)
	case offset == 0x70:
		c.dpcr = value
	case offset == 0x74:
		c.writeDICR(value)
	}
}

func (c *Controller) readChannel(ch addr.DMAChannel, reg uint32) uint32 {
	ct := &c.channels[ch]
	switch reg {
	case 0x0:
		return ct.madr
	case 0x4:
		return ct.bcr
	case 0x8:
		return ct.chcr
	default:
		return 0
	}
}

func (c *Controller) writeChannel(ch addr.DMAChannel, reg uint32, value uint32) {
	ct := &c.channels[ch]
	switch reg {
	case 0x0:
		ct.madr = value & addr.RAMMask
	case 0x4:
		ct.bcr = value
	case 0x8:
		ct.chcr = value
		c.maybeStart(ch)
	}
}

// maybeStart runs a transfer synchronously (this model has no partial-
// transfer timing) whenever the channel is both enabled and triggered per
// its sync mode.
func (c *Controller) maybeStart(ch addr.DMAChannel) {
	ct := &c.channels[ch]
	if ct.chcr&chcrEnable == 0 {
		return
	}
	syncMode := (ct.chcr >> chcrSyncShift) & chcrSyncMask
	if syncMode != 2 && ct.chcr&chcrTrigger == 0 {
		return
	}

	c.runTransfer(ch, syncMode)

	ct.chcr &^= chcrEnable | chcrTrigger
	c.setChannelFlag(ch)
}

func (c *Controller) runTransfer(ch addr.DMAChannel, syncMode uint32) {
	switch ch {
	case addr.DMAOTC:
		c.runOTC(ch)
	case addr.DMAGPU:
		if syncMode == 2 {
			c.runLinkedList(ch)
		} else {
			c.runBlock(ch)
		}
	default:
		c.runBlock(ch)
	}
}

// runOTC builds the ordering table spec.md section 4.5 describes: entries
// descending by 4 bytes, each pointing at the previous, terminated by
// 0x00FF_FFFF.
func (c *Controller) runOTC(ch addr.DMAChannel) {
	ct := &c.channels[ch]
	count := ct.bcr & 0xFFFF
	if count == 0 {
		count = 0x10000
	}
	addrCur := ct.madr
	for i := uint32(0); i < count; i++ {
		var word uint32
		if i == count-1 {
			word = 0x00FF_FFFF
		} else {
			word = (addrCur - 4) & 0x001F_FFFC
		}
		_ = c.bus.Write32(addrCur, word)
		addrCur -= 4
	}
}

func (c *Controller) runBlock(ch addr.DMAChannel) {
	ct := &c.channels[ch]
	ep := c.endpoints[ch]

	blockSize := ct.bcr & 0xFFFF
	if blockSize == 0 {
		blockSize = 0x10000
	}
	blockCount := (ct.bcr >> 16) & 0xFFFF
	if blockCount == 0 {
		blockCount = 1
	}
	total := blockSize * blockCount
	toDevice := ct.chcr&chcrDirection != 0
	step := int32(4)
	if ct.chcr&chcrDecrement != 0 {
		step = -4
	}

	addrCur := ct.madr
	for i := uint32(0); i < total; i++ {
		if toDevice {
			word, err := c.bus.Read32(addrCur)
			if err == nil && ep != nil {
				ep.DMAWrite(word)
			}
		} else {
			var word uint32
			if ep != nil {
				word = ep.DMARead()
			}
			_ = c.bus.Write32(addrCur, word)
		}
		addrCur = uint32(int64(addrCur) + int64(step))
	}
	ct.madr = addrCur
}

// runLinkedList walks the GPU's linked-list chain per spec.md section 4.5:
// header word (next[23:0] | count<<24), followed by count data words,
// terminated when the next field has bit 23 set.
func (c *Controller) runLinkedList(ch addr.DMAChannel) {
	ct := &c.channels[ch]
	ep := c.endpoints[ch]
	node := ct.madr

	for {
		header, err := c.bus.Read32(node)
		if err != nil {
			break
		}
		count := header >> 24
		for i := uint32(0); i < count; i++ {
			wordAddr := node + 4 + i*4
			word, err := c.bus.Read32(wordAddr)
			if err != nil {
				break
			}
			if ep != nil {
				ep.DMAWrite(word)
			}
		}
		next := header & 0x00FF_FFFF
		if next&0x0080_0000 != 0 {
			break
		}
		node = next
	}
	ct.madr = 0x00FF_FFFF
}

// setChannelFlag records the channel's completion flag (set unconditionally,
// per hardware -- only the master-IRQ computation cares about the matching
// enable bit) and requests the DMA interrupt line on a 0->1 master
// transition.
func (c *Controller) setChannelFlag(ch addr.DMAChannel) {
	prevMaster := c.computeDICR()&0x8000_0000 != 0
	c.dicr |= uint32(1) << (24 + uint(ch))
	if !prevMaster && c.computeDICR()&0x8000_0000 != 0 {
		c.irq.Request(addr.DMA)
	}
}

// computeDICR applies spec.md's master-flag formula: force OR (any
// channel's enable AND flag both set).
func (c *Controller) computeDICR() uint32 {
	force := c.dicr&(1<<15) != 0
	anyEnabled := false
	for ch := 0; ch < int(addr.DMAChannelCount); ch++ {
		enableBit := uint32(1) << (16 + uint(ch))
		flagBit := uint32(1) << (24 + uint(ch))
		if c.dicr&enableBit != 0 && c.dicr&flagBit != 0 {
			anyEnabled = true
			break
		}
	}
	master := force || anyEnabled
	result := c.dicr &^ (1 << 31)
	if master {
		result |= 1 << 31
	}
	return result
}

func (c *Controller) writeDICR(value uint32) {
	wasMaster := c.computeDICR()&0x8000_0000 != 0

	// Bits 24-30 (channel flags) are write-1-to-clear; bits 0-23 are
	// plain read/write enable/priority bits; bit 31 is read-only.
	flags := c.dicr & (0x7F << 24)
	flags &^= value & (0x7F << 24)
	c.dicr = (value & 0x00FF_FFFF) | flags

	isMaster := c.computeDICR()&0x8000_0000 != 0
	if !wasMaster && isMaster {
		c.irq.Request(addr.DMA)
	}
}
