package cdrom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullstep/psxgo/psx/interrupt"
)

func makeTestImage(t *testing.T) *Image {
	t.Helper()
	dir := t.TempDir()
	binPath := filepath.Join(dir, "game.bin")
	cuePath := filepath.Join(dir, "game.cue")

	// Two full sectors of track 1, starting at the standard 2-second pregap.
	require.NoError(t, os.WriteFile(binPath, make([]byte, sectorSize*2), 0o644))
	require.NoError(t, os.WriteFile(cuePath, []byte(
		"FILE \"game.bin\" BINARY\n"+
			"  TRACK 01 MODE2/2352\n"+
			"    INDEX 01 00:02:00\n"), 0o644))

	img, err := LoadCue(cuePath)
	require.NoError(t, err)
	return img
}

func TestGetStatPushesStatusAndAcknowledges(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)

	c.WriteIO(1, 8, 0x01) // GetStat
	require.Equal(t, uint32(int3Acknowledge), uint32(c.intFlag))
	require.True(t, len(c.respFIFO) >= 1)
	require.Equal(t, uint32(c.st.encode()), c.ReadIO(1, 8))
}

func TestSetLocDecodesBCDParameters(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)

	// SetLoc params are pushed via register 2 (index 0), then command on register 1.
	c.WriteIO(2, 8, 0x00) // mm = 0 (BCD)
	c.WriteIO(2, 8, 0x03) // ss = 3 (BCD)
	c.WriteIO(2, 8, 0x00) // ff = 0 (BCD)
	c.WriteIO(1, 8, 0x02) // SetLoc

	require.Equal(t, MSF{M: 0, S: 3, F: 0}, c.seekTo)
}

func TestReadNDeliversSectorAfterThreshold(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)
	c.InsertDisc(makeTestImage(t))

	c.seekTo = MSF{M: 0, S: 2, F: 0}
	c.WriteIO(1, 8, 0x06) // ReadN
	require.Equal(t, Reading, c.state)
	c.intFlag = 0 // clear the INT3 acknowledge to isolate the INT1 check

	c.Tick(readCyclesSingleSpeed - 1)
	require.Zero(t, c.intFlag, "sector should not be ready before the threshold")

	c.Tick(1)
	require.Equal(t, uint8(int1DataReady), c.intFlag)
	require.NotEmpty(t, c.dataFIFO)
}

type captureAudioSink struct {
	samples []int16
}

func (s *captureAudioSink) PushCDAudio(pcm []int16) {
	s.samples = append(s.samples, pcm...)
}

func makeAudioImage(t *testing.T) *Image {
	t.Helper()
	dir := t.TempDir()
	binPath := filepath.Join(dir, "disc.bin")
	cuePath := filepath.Join(dir, "disc.cue")

	pcm := make([]byte, sectorSize*2)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(binPath, pcm, 0o644))
	require.NoError(t, os.WriteFile(cuePath, []byte(
		"FILE \"disc.bin\" BINARY\n"+
			"  TRACK 01 AUDIO\n"+
			"    INDEX 01 00:02:00\n"), 0o644))

	img, err := LoadCue(cuePath)
	require.NoError(t, err)
	return img
}

func TestPlayStreamsAudioTrackToSink(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)
	c.InsertDisc(makeAudioImage(t))
	sink := &captureAudioSink{}
	c.SetAudioSink(sink)

	c.WriteIO(2, 8, 0x01) // track 1
	c.WriteIO(1, 8, 0x03) // Play
	require.Equal(t, Playing, c.state)

	c.Tick(readCyclesSingleSpeed)
	require.Len(t, sink.samples, sectorSize/2, "one audio sector is 588 stereo frames")
	require.Empty(t, c.dataFIFO, "CD-DA playback must not touch the data FIFO")
}

func TestAcknowledgeInterruptClearsOnlySelectedBits(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)
	c.intFlag = int1DataReady | int3Acknowledge

	c.WriteIO(0, 8, 1) // select index 1
	c.WriteIO(3, 8, uint32(int3Acknowledge))
	require.Equal(t, uint8(int1DataReady), c.intFlag)
}

func TestGetIDWithNoDiscRaisesIDError(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)

	c.WriteIO(1, 8, 0x1A) // GetID
	require.Equal(t, uint8(int5SeekError), c.intFlag)
}

func TestGetIDWithDiscReturnsRegionBytes(t *testing.T) {
	irq := interrupt.New()
	c := New(irq, nil)
	c.InsertDisc(makeTestImage(t))

	c.WriteIO(1, 8, 0x1A)
	require.Equal(t, []uint8{c.st.encode(), 0x00, 0x20, 0x00, 'S', 'C', 'E', 'A'}, c.respFIFO)
}
