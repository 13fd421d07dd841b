//go:build sdl2

package main

import (
	"github.com/nullstep/psxgo/backend/sdl2"
	"github.com/nullstep/psxgo/psx/system"
)

func runSDL2(sys *system.System) error {
	b := sdl2.New(sys, nil)
	if err := b.Init(); err != nil {
		return err
	}
	return b.Run()
}
