package pad

import "log/slog"

const (
	ctrlSelect = 1 << 1 // JOY_CTRL bit 1: /JOYn output level (select)
	ctrlReset  = 1 << 6
)

// Controllers is the IODevice wired at 0x1F80_1040-0x1F80_1050: JOY_DATA,
// JOY_STAT, JOY_MODE, JOY_CTRL, JOY_BAUD, routing byte transfers to the
// first controller port. Port1's button state is tracked for a second
// physical pad but never selected by this front-end (multitap and port 2
// addressing are out of scope per spec.md section 1).
type Controllers struct {
	Port0, Port1 *Port

	mode uint16
	ctrl uint16
	baud uint16

	lastResponse uint8

	log *slog.Logger
}

func NewControllers(log *slog.Logger) *Controllers {
	if log == nil {
		log = slog.Default()
	}
	return &Controllers{
		Port0: New(log),
		Port1: New(log),
		log:   log,
	}
}

func (c *Controllers) ReadIO(offset uint32, width int) uint32 {
	switch offset {
	case 0x0:
		return uint32(c.lastResponse)
	case 0x4:
		return uint32(c.readStat())
	case 0x8:
		return uint32(c.mode)
	case 0xA:
		return uint32(c.ctrl)
	case 0xE:
		return uint32(c.baud)
	default:
		return 0
	}
}

func (c *Controllers) WriteIO(offset uint32, width int, value uint32) {
	switch offset {
	case 0x0:
		c.lastResponse = c.Port0.Transfer(uint8(value))
	case 0x8:
		c.mode = uint16(value)
	case 0xA:
		c.writeCtrl(uint16(value))
	case 0xE:
		c.baud = uint16(value)
	}
}

// readStat reports TX-ready (always, this model has no transfer latency)
// and RX-has-data (always, since every write produces an immediate
// response byte).
func (c *Controllers) readStat() uint32 {
	return (1 << 0) | (1 << 1)
}

func (c *Controllers) writeCtrl(value uint16) {
	prev := c.ctrl
	c.ctrl = value
	if value&ctrlReset != 0 {
		c.Port0.Deselect()
	}
	selected := value&ctrlSelect != 0
	wasSelected := prev&ctrlSelect != 0
	if selected && !wasSelected {
		c.Port0.Select()
	} else if !selected && wasSelected {
		c.Port0.Deselect()
	}
}
