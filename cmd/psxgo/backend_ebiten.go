package main

import (
	"github.com/hajimehoshi/ebiten/v2"
	ebitenBackend "github.com/nullstep/psxgo/backend/ebiten"
	"github.com/nullstep/psxgo/psx/system"
)

func runEbiten(sys *system.System) error {
	g, err := ebitenBackend.New(sys, nil)
	if err != nil {
		return err
	}
	defer g.Close()
	return ebiten.RunGame(g)
}
