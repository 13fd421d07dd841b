package main

import (
	"github.com/nullstep/psxgo/backend/terminal"
	"github.com/nullstep/psxgo/psx/system"
)

func runTerminal(sys *system.System) error {
	b, err := terminal.New(sys, nil)
	if err != nil {
		return err
	}
	return b.Run()
}
