// Package loader implements the PSX-EXE binary loader and the SYSTEM.CNF
// config parser, per spec.md section 6. Grounded on the teacher's
// cartridge header parser (jeebie/memory/cart_utils.go: a fixed-offset
// binary header read into a struct, validated by a magic string)
// generalized from the Game Boy ROM header to the PSX-EXE header.
package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const (
	exeHeaderSize = 2048
	exeMagic      = "PS-X EXE"
	exeDataStart  = 0x800
)

// Error is the loader's narrow, structurally typed error taxonomy, per
// spec.md section 7.
type Error struct {
	Kind string // "BadMagic", "Truncated", "MissingBoot", "ParseError"
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("loader: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("loader: %s", e.Kind)
}

// Executable is a parsed PSX-EXE: the header fields the loader cares about
// plus the raw load image.
type Executable struct {
	PC         uint32
	GP         uint32
	LoadAddr   uint32
	LoadSize   uint32
	StackBase  uint32
	StackOff   uint32
	Data       []byte
}

// ParseEXE validates the 2048-byte PSX-EXE header and extracts the load
// image, per spec.md section 6's field table.
func ParseEXE(raw []byte) (*Executable, error) {
	if len(raw) < exeHeaderSize {
		return nil, &Error{Kind: "Truncated", Msg: "file shorter than the 2048-byte header"}
	}
	if string(raw[0:8]) != exeMagic {
		return nil, &Error{Kind: "BadMagic"}
	}

	e := &Executable{
		PC:        binary.LittleEndian.Uint32(raw[0x10:]),
		GP:        binary.LittleEndian.Uint32(raw[0x14:]),
		LoadAddr:  binary.LittleEndian.Uint32(raw[0x18:]),
		LoadSize:  binary.LittleEndian.Uint32(raw[0x1C:]),
		StackBase: binary.LittleEndian.Uint32(raw[0x30:]),
		StackOff:  binary.LittleEndian.Uint32(raw[0x34:]),
	}

	dataEnd := exeDataStart + int(e.LoadSize)
	if dataEnd > len(raw) {
		return nil, &Error{Kind: "Truncated", Msg: "load image shorter than declared load_size"}
	}
	e.Data = raw[exeDataStart:dataEnd]
	return e, nil
}

// SystemConfig is the parsed contents of SYSTEM.CNF: a disc's boot
// configuration, per spec.md section 6.
type SystemConfig struct {
	Boot  string
	TCB   string
	Event string
	Stack uint32
}

const defaultStack = 0x801F_FF00

// ParseSystemCNF parses `KEY = VALUE` lines, `#` comments. BOOT is
// mandatory; STACK defaults to 0x801F_FF00 when absent, per spec.md
// section 6.
func ParseSystemCNF(r *bufio.Scanner) (*SystemConfig, error) {
	cfg := &SystemConfig{Stack: defaultStack}
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch key {
		case "BOOT":
			cfg.Boot = value
		case "TCB":
			cfg.TCB = value
		case "EVENT":
			cfg.Event = value
		case "STACK":
			v, err := parseHex(value)
			if err != nil {
				return nil, &Error{Kind: "ParseError", Msg: "bad STACK value: " + value}
			}
			cfg.Stack = v
		}
	}
	if cfg.Boot == "" {
		return nil, &Error{Kind: "MissingBoot"}
	}
	return cfg, nil
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
