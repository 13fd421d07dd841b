// Package cdrom implements the CD-ROM controller: the parameter/response
// FIFO pair, the drive state machine, a CUE/BIN disc image reader, MSF/LBA
// conversion, and the command set spec.md section 4.7 describes. Grounded
// on the teacher's cartridge/MBC package (jeebie/memory/mbc.go: a small
// state machine plus backing-file access) generalized from Game Boy
// cartridge banking to CD-ROM track/sector addressing.
package cdrom

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TrackType identifies the sector format of one track.
type TrackType int

const (
	Mode1_2352 TrackType = iota
	Mode2_2352
	Audio
)

func parseTrackType(s string) TrackType {
	switch s {
	case "MODE1/2352":
		return Mode1_2352
	case "AUDIO":
		return Audio
	default:
		return Mode2_2352
	}
}

const sectorSize = 2352

// MSF is a disc position in minutes/seconds/frames (75 frames/second).
type MSF struct {
	M, S, F int
}

// ToLBA converts an MSF position to a logical block address, accounting
// for the two-second lead-in pregap (spec.md section 4.7).
func (p MSF) ToLBA() int {
	return (p.M*60+p.S)*75 + p.F - 150
}

// FromLBA is ToLBA's inverse.
func FromLBA(lba int) MSF {
	lba += 150
	f := lba % 75
	lba /= 75
	s := lba % 60
	m := lba / 60
	return MSF{M: m, S: s, F: f}
}

func BCDToDec(b uint8) uint8 { return (b>>4)*10 + (b & 0x0F) }
func DecToBCD(d uint8) uint8 { return ((d / 10) << 4) | (d % 10) }

// Track is one entry in a disc's table of contents.
type Track struct {
	Number     int
	Type       TrackType
	StartMSF   MSF
	StartLBA   int
	LengthSecs int
	FileOffset int64
}

// Image is a parsed CUE/BIN disc image.
type Image struct {
	Tracks   []Track
	binPath  string
	file     *os.File
}

// LoadCue parses a CUE sheet and opens the referenced BIN file. Track
// lengths are derived from successive INDEX 01 positions and, for the
// last track, the BIN file's size.
func LoadCue(cuePath string) (*Image, error) {
	f, err := os.Open(cuePath)
	if err != nil {
		return nil, fmt.Errorf("open cue: %w", err)
	}
	defer f.Close()

	dir := ""
	if idx := strings.LastIndexAny(cuePath, "/\\"); idx >= 0 {
		dir = cuePath[:idx+1]
	}

	var binName string
	var tracks []Track
	var cur *Track

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "FILE":
			binName = strings.Trim(fields[1], "\"")
		case "TRACK":
			if cur != nil {
				tracks = append(tracks, *cur)
			}
			num, _ := strconv.Atoi(fields[1])
			cur = &Track{Number: num, Type: parseTrackType(fields[2])}
		case "INDEX":
			if fields[1] == "01" && cur != nil {
				msf, err := parseMSF(fields[2])
				if err != nil {
					return nil, fmt.Errorf("invalid cue: %w", err)
				}
				cur.StartMSF = msf
				cur.StartLBA = msf.ToLBA()
				cur.FileOffset = int64(cur.StartLBA) * sectorSize
			}
		}
	}
	if cur != nil {
		tracks = append(tracks, *cur)
	}
	if binName == "" || len(tracks) == 0 {
		return nil, fmt.Errorf("invalid cue: no tracks found")
	}

	binPath := dir + binName
	bin, err := os.Open(binPath)
	if err != nil {
		return nil, fmt.Errorf("open bin: %w", err)
	}
	stat, err := bin.Stat()
	if err != nil {
		bin.Close()
		return nil, fmt.Errorf("stat bin: %w", err)
	}

	for i := range tracks {
		var end int64
		if i+1 < len(tracks) {
			end = tracks[i+1].FileOffset
		} else {
			end = stat.Size()
		}
		tracks[i].LengthSecs = int((end - tracks[i].FileOffset) / sectorSize)
	}

	return &Image{Tracks: tracks, binPath: binPath, file: bin}, nil
}

func parseMSF(s string) (MSF, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return MSF{}, fmt.Errorf("malformed MSF %q", s)
	}
	m, err1 := strconv.Atoi(parts[0])
	sec, err2 := strconv.Atoi(parts[1])
	f, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return MSF{}, fmt.Errorf("malformed MSF %q", s)
	}
	return MSF{M: m, S: sec, F: f}, nil
}

// trackFor returns the track enclosing the given LBA, or nil.
func (img *Image) trackFor(lba int) *Track {
	for i := range img.Tracks {
		t := &img.Tracks[i]
		if lba >= t.StartLBA && lba < t.StartLBA+t.LengthSecs {
			return t
		}
	}
	return nil
}

// ReadSector returns the raw 2352-byte sector at msf, or an error if msf
// falls outside every track.
func (img *Image) ReadSector(msf MSF) ([]byte, error) {
	lba := msf.ToLBA()
	t := img.trackFor(lba)
	if t == nil {
		return nil, fmt.Errorf("sector out of range: %+v", msf)
	}
	offset := t.FileOffset + int64(lba-t.StartLBA)*sectorSize
	buf := make([]byte, sectorSize)
	if _, err := img.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read sector: %w", err)
	}
	return buf, nil
}

func (img *Image) Close() error {
	if img.file != nil {
		return img.file.Close()
	}
	return nil
}
