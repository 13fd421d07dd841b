//go:build !sdl2

package main

import (
	"errors"

	"github.com/nullstep/psxgo/psx/system"
)

// runSDL2 is stubbed in default builds, which skip the SDL2 cgo
// dependency. Build with -tags sdl2 (and SDL2 development libraries
// installed) to enable it, per the teacher's build-tag convention.
func runSDL2(sys *system.System) error {
	return errors.New("psxgo was built without the sdl2 tag; rebuild with -tags sdl2")
}
