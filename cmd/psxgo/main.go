package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nullstep/psxgo/psx/cdrom"
	"github.com/nullstep/psxgo/psx/loader"
	"github.com/nullstep/psxgo/psx/system"
	"github.com/nullstep/psxgo/scripting"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

func main() {
	app := cli.NewApp()
	app.Name = "psxgo"
	app.Description = "A PlayStation hardware emulator"
	app.Usage = "psxgo [options] <bios file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "bios", Usage: "Path to the BIOS image (512 KB)", EnvVar: "PSX_BIOS_PATH"},
		cli.StringFlag{Name: "exe", Usage: "Path to a PSX-EXE to side-load after BIOS boot"},
		cli.StringFlag{Name: "cdrom, c", Usage: "Path to a CUE sheet for a CD image to mount"},
		cli.StringFlag{Name: "backend", Value: "headless", Usage: "Host backend: headless, terminal, sdl2, ebiten"},
		cli.IntFlag{Name: "frames", Value: 0, Usage: "Headless mode: run this many frames then exit (0 = run instructions instead)"},
		cli.IntFlag{Name: "instructions, n", Value: 100_000, Usage: "Headless mode: run this many instructions when --frames is 0"},
		cli.BoolFlag{Name: "debug", Usage: "Drop into an interactive Lua debug console instead of running"},
		cli.StringFlag{Name: "lua", Usage: "Run a Lua script against the machine instead of the frame loop"},
		cli.BoolFlag{Name: "verbose, v", Usage: "Enable debug-level logging"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("psxgo exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	biosPath := c.String("bios")
	if biosPath == "" {
		if c.NArg() > 0 {
			biosPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no BIOS path provided")
		}
	}

	bios, err := os.ReadFile(biosPath)
	if err != nil {
		return fmt.Errorf("reading bios: %w", err)
	}

	sys := system.New(nil)
	if err := sys.LoadBIOS(bios); err != nil {
		return fmt.Errorf("loading bios: %w", err)
	}

	if cuePath := c.String("cdrom"); cuePath != "" {
		img, err := cdrom.LoadCue(cuePath)
		if err != nil {
			return fmt.Errorf("loading disc image: %w", err)
		}
		sys.InsertDisc(img)
	}

	if exePath := c.String("exe"); exePath != "" {
		raw, err := os.ReadFile(exePath)
		if err != nil {
			return fmt.Errorf("reading exe: %w", err)
		}
		exe, err := loader.ParseEXE(raw)
		if err != nil {
			return fmt.Errorf("parsing exe: %w", err)
		}
		sys.LoadEXE(exe)
	}

	if script := c.String("lua"); script != "" {
		return runLuaScript(sys, script)
	}
	if c.Bool("debug") {
		return runDebugConsole(sys)
	}

	switch c.String("backend") {
	case "headless":
		return runHeadless(sys, c.Int("frames"), c.Int("instructions"))
	case "terminal", "tcell":
		return runTerminal(sys)
	case "sdl2":
		return runSDL2(sys)
	case "ebiten":
		return runEbiten(sys)
	default:
		return fmt.Errorf("unknown backend %q", c.String("backend"))
	}
}

func runHeadless(sys *system.System, frames, instructions int) error {
	if frames > 0 {
		for i := 0; i < frames; i++ {
			if err := sys.RunFrame(); err != nil {
				return err
			}
		}
		return nil
	}
	return sys.RunInstructions(instructions)
}

// runLuaScript evaluates one Lua file against a console bound to the
// System, for scripted inspection or automated pokes.
func runLuaScript(sys *system.System, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading lua script: %w", err)
	}
	console := scripting.New(sys, nil)
	defer console.Close()
	return console.Eval(string(src))
}

// runDebugConsole puts the terminal into raw mode and feeds single
// keystrokes into a Lua console bound to the System, mirroring the
// IntuitionEngine terminal host's raw-stdin read loop.
func runDebugConsole(sys *system.System) error {
	console := scripting.New(sys, nil)
	defer console.Close()

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runLineConsole(console)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprint(os.Stdout, "psxgo debug console (s=step, c=continue 1000, q=quit)\r\n")
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return nil
		}
		switch buf[0] {
		case 's':
			if err := console.Eval("step(1)"); err != nil {
				fmt.Fprintf(os.Stdout, "%v\r\n", err)
			}
			fmt.Fprintf(os.Stdout, "pc=%08X\r\n", sys.CPU.PC())
		case 'c':
			if err := console.Eval("step(1000)"); err != nil {
				fmt.Fprintf(os.Stdout, "%v\r\n", err)
			}
			fmt.Fprintf(os.Stdout, "pc=%08X\r\n", sys.CPU.PC())
		case 'q':
			return nil
		}
	}
}

// runLineConsole is the non-tty fallback: one Lua statement per line of
// stdin, for scripted or piped debug sessions.
func runLineConsole(console *scripting.Console) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := console.Eval(scanner.Text()); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return scanner.Err()
}
