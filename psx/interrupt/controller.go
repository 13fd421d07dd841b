// Package interrupt implements the PlayStation interrupt controller:
// two 16-bit words (status, mask) over eleven sources, per spec.md
// section 4.2.
package interrupt

import "github.com/nullstep/psxgo/psx/addr"

// Controller holds pending/mask status words and answers "is any enabled
// interrupt pending?".
type Controller struct {
	status uint16
	mask   uint16
}

// New returns a controller with all sources clear and masked.
func New() *Controller {
	return &Controller{}
}

// Request ORs the given source bits into the status register. Devices call
// this when they need service.
func (c *Controller) Request(mask addr.Interrupt) {
	c.status |= uint16(mask)
}

// WriteStatus implements the hardware write-zero-to-clear convention:
// status := status AND w. Writing a 1 bit leaves that source untouched;
// writing a 0 bit acknowledges (clears) it.
func (c *Controller) WriteStatus(w uint16) {
	c.status &= w
}

// WriteMask replaces the mask register outright.
func (c *Controller) WriteMask(w uint16) {
	c.mask = w
}

// ReadStatus returns the raw status register.
func (c *Controller) ReadStatus() uint16 { return c.status }

// ReadMask returns the raw mask register.
func (c *Controller) ReadMask() uint16 { return c.mask }

// Pending returns status & mask: the set of sources that should reach the
// CPU.
func (c *Controller) Pending() uint16 {
	return c.status & c.mask
}

// IsPending reports whether any enabled interrupt is pending.
func (c *Controller) IsPending() bool {
	return c.Pending() != 0
}

// ReadIO and WriteIO satisfy memory.IODevice, mapping I_STAT at offset 0x0
// and I_MASK at offset 0x4, per spec.md section 4.2.
func (c *Controller) ReadIO(offset uint32, width int) uint32 {
	switch offset {
	case 0x0:
		return uint32(c.ReadStatus())
	case 0x4:
		return uint32(c.ReadMask())
	default:
		return 0
	}
}

func (c *Controller) WriteIO(offset uint32, width int, value uint32) {
	switch offset {
	case 0x0:
		c.WriteStatus(uint16(value))
	case 0x4:
		c.WriteMask(uint16(value))
	}
}
