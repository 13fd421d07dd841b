package cdrom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMSFLBARoundTrip(t *testing.T) {
	m := MSF{M: 0, S: 2, F: 0}
	require.Equal(t, 0, m.ToLBA())
	require.Equal(t, m, FromLBA(0))

	m2 := MSF{M: 1, S: 30, F: 10}
	require.Equal(t, m2, FromLBA(m2.ToLBA()))
}

func TestBCDRoundTrip(t *testing.T) {
	for d := uint8(0); d <= 99; d++ {
		require.Equal(t, d, BCDToDec(DecToBCD(d)))
	}
}

func TestLoadCueParsesTracksAndLengths(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "game.bin")
	cuePath := filepath.Join(dir, "game.cue")

	// Two tracks: a 4-sector data track followed by a 2-sector audio track.
	data := make([]byte, 6*sectorSize)
	require.NoError(t, os.WriteFile(binPath, data, 0o644))

	cue := "FILE \"game.bin\" BINARY\n" +
		"  TRACK 01 MODE2/2352\n" +
		"    INDEX 01 00:02:00\n" +
		"  TRACK 02 AUDIO\n" +
		"    INDEX 01 00:02:04\n"
	require.NoError(t, os.WriteFile(cuePath, []byte(cue), 0o644))

	img, err := LoadCue(cuePath)
	require.NoError(t, err)
	defer img.Close()

	require.Len(t, img.Tracks, 2)
	require.Equal(t, Mode2_2352, img.Tracks[0].Type)
	require.Equal(t, 4, img.Tracks[0].LengthSecs)
	require.Equal(t, Audio, img.Tracks[1].Type)
	require.Equal(t, 2, img.Tracks[1].LengthSecs)

	sector, err := img.ReadSector(MSF{M: 0, S: 2, F: 0})
	require.NoError(t, err)
	require.Len(t, sector, sectorSize)
}

func TestUnknownTrackTypeDefaultsToMode2(t *testing.T) {
	require.Equal(t, Mode2_2352, parseTrackType("GARBAGE"))
}
