package pad

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSerialSequence mirrors spec.md section 8's concrete scenario 7:
// pressing Cross, selecting, and exchanging five bytes must yield the
// digital-pad identification sequence and the latched button mask.
func TestSerialSequence(t *testing.T) {
	p := New(nil)
	p.SetButtons(^Cross) // all released except Cross (active-low)
	p.Select()

	require.Equal(t, uint8(0xFF), p.Transfer(0x01))
	require.Equal(t, uint8(0x41), p.Transfer(0x42))
	require.Equal(t, uint8(0x5A), p.Transfer(0x00))
	lo := p.Transfer(0x00)
	hi := p.Transfer(0x00)

	mask := uint16(lo) | uint16(hi)<<8
	require.Equal(t, uint16(^Cross), mask)
}

func TestDeselectEndsFrame(t *testing.T) {
	p := New(nil)
	p.Select()
	p.Transfer(0)
	p.Transfer(0)
	p.Transfer(0)
	p.Transfer(0)
	p.Transfer(0) // fifth byte ends the sequence
	require.Equal(t, uint8(0xFF), p.Transfer(0), "a transfer after deselect reports idle")
}

func TestControllersRegisterRoundTrip(t *testing.T) {
	c := NewControllers(nil)
	c.WriteIO(0xA, 16, ctrlSelect)
	c.WriteIO(0x0, 8, 0x01)
	require.Equal(t, uint32(0xFF), c.ReadIO(0x0, 8))
}
