package scripting

import (
	"testing"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/system"
	"github.com/stretchr/testify/require"
)

func newTestConsole(t *testing.T) (*Console, *system.System) {
	t.Helper()
	sys := system.New(nil)
	require.NoError(t, sys.LoadBIOS(make([]byte, addr.BIOSSize)))
	c := New(sys, nil)
	t.Cleanup(c.Close)
	return c, sys
}

func TestPokeThenPeekRoundTrips(t *testing.T) {
	c, sys := newTestConsole(t)

	require.NoError(t, c.Eval("poke(0x100, 0xCAFE)"))
	v, err := sys.Bus.Read32(0x100)
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFE), v)

	require.NoError(t, c.Eval("assert(peek(0x100) == 0xCAFE)"))
}

func TestStepAdvancesTheCPU(t *testing.T) {
	c, sys := newTestConsole(t)

	require.NoError(t, c.Eval("step(3)"))
	require.Equal(t, uint64(3), sys.CPU.Cycles())
	require.NoError(t, c.Eval("assert(pc() == 0xBFC0000C)"))
}

func TestEvalReportsLuaErrors(t *testing.T) {
	c, _ := newTestConsole(t)
	require.Error(t, c.Eval("this is not lua"))
}
