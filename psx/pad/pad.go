// Package pad implements the controller port front-end: a byte-at-a-time
// synchronous serial protocol exposing the current button bitmask, per
// spec.md section 4.10. Grounded on the teacher's joypad register
// (jeebie/memory/joypad.go: a single byte latching button state behind a
// select-line convention) generalized from the Game Boy's 4-bit matrix
// scan to the PSX's five-byte digital-pad transfer sequence.
package pad

import "log/slog"

// ButtonMask is the 16-bit button state the host input layer maintains;
// a 0 bit means "pressed", per the active-low hardware convention.
type ButtonMask uint16

const (
	Select ButtonMask = 1 << iota
	L3
	R3
	Start
	Up
	Right
	Down
	Left
	L2
	R2
	L1
	R1
	Triangle
	Circle
	Cross
	Square
)

// Port is one controller port's serial state machine.
type Port struct {
	buttons ButtonMask
	latched ButtonMask
	step    int
	selected bool

	log *slog.Logger
}

func New(log *slog.Logger) *Port {
	if log == nil {
		log = slog.Default()
	}
	return &Port{buttons: 0xFFFF, log: log}
}

// SetButtons is called by the host input producer to latch the current
// button bitmask. It takes effect at the next Select.
func (p *Port) SetButtons(mask ButtonMask) { p.buttons = mask }

// Select arms the port for a new transfer sequence, per spec.md section
// 4.10's "a select transition arms the controller".
func (p *Port) Select() {
	p.selected = true
	p.step = 0
	p.latched = p.buttons
}

// Deselect ends the current frame.
func (p *Port) Deselect() {
	p.selected = false
	p.step = 0
}

// Transfer exchanges one byte with the controller and returns its
// response. The five-byte digital-pad sequence is 0xFF, 0x41, 0x5A, then
// the low and high bytes of the button mask.
func (p *Port) Transfer(b uint8) uint8 {
	if !p.selected {
		return 0xFF
	}

	var resp uint8
	switch p.step {
	case 0:
		resp = 0xFF
	case 1:
		resp = 0x41
	case 2:
		resp = 0x5A
	case 3:
		resp = uint8(p.latched)
	case 4:
		resp = uint8(p.latched >> 8)
	default:
		resp = 0xFF
	}
	p.step++
	if p.step > 4 {
		p.selected = false
	}
	return resp
}
