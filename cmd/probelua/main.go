// Copyright 2024 The ProbeLua Authors
// This file is part of the ProbeLua interpreter.
//
// ProbeLua is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ProbeLua is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ProbeLua. If not, see <http://www.gnu.org/licenses/>.

// Command probelua runs and inspects Lua 5.1.5 bytecode chunks against the
// probelua core: load one or more compiled chunks, run a REPL, disassemble
// a chunk, or watch a directory and re-run on change.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/naoina/toml"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"github.com/rjeczalik/notify"
	"github.com/shirou/gopsutil/process"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/time/rate"
	cli "gopkg.in/urfave/cli.v1"

	lua "github.com/probelua/probelua"
	"github.com/probelua/probelua/internal/xlog"
)

var app = cli.NewApp()

func init() {
	app.Name = "probelua"
	app.Usage = "run and inspect Lua 5.1.5 bytecode with the probelua core"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file"},
		cli.StringFlag{Name: "loglevel", Value: "info", Usage: "error|warn|info|debug|trace"},
		cli.BoolFlag{Name: "stats", Usage: "print process resource stats on exit"},
		cli.StringFlag{Name: "cache", Usage: "enable on-disk bytecode Proto cache at this directory"},
	}
	app.Commands = []cli.Command{runCommand, replCommand, disasCommand, watchCommand}
	app.Action = func(ctx *cli.Context) error {
		if ctx.NArg() > 0 {
			return runChunks(ctx, ctx.Args())
		}
		return repl(ctx)
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "probelua: %v\n", err)
		os.Exit(1)
	}
}

// fileConfig mirrors the go-probe convention of a TOML file overlaying CLI
// flags, normalized so struct field names double as TOML keys verbatim.
type fileConfig struct {
	LogLevel string `toml:",omitempty"`
	Cache    string `toml:",omitempty"`
}

var tomlSettings = toml.Config{
	NormFieldName: func(_ interface{}, key string) string { return key },
	FieldToKey:    func(_ interface{}, field string) string { return field },
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func newState(ctx *cli.Context) (*lua.State, *xlog.Logger, error) {
	cfg, err := loadFileConfig(ctx.GlobalString("config"))
	if err != nil {
		return nil, nil, err
	}
	levelName := ctx.GlobalString("loglevel")
	if cfg.LogLevel != "" {
		levelName = cfg.LogLevel
	}
	logger := xlog.New(nil, parseLevel(levelName))

	s := lua.NewState()
	s.SetLogger(logger.Sink("vm"))
	s.OpenBase()

	cacheDir := ctx.GlobalString("cache")
	if cfg.Cache != "" {
		cacheDir = cfg.Cache
	}
	if cacheDir != "" {
		if err := s.EnableDiskCache(cacheDir); err != nil {
			logger.Warn("disk cache disabled: %v", err)
		}
	}
	return s, logger, nil
}

func parseLevel(name string) xlog.Lvl {
	switch strings.ToLower(name) {
	case "error":
		return xlog.LvlError
	case "warn":
		return xlog.LvlWarn
	case "debug":
		return xlog.LvlDebug
	case "trace":
		return xlog.LvlTrace
	default:
		return xlog.LvlInfo
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "load and run one or more bytecode chunks",
	ArgsUsage: "<chunk.luac> [more...]",
	Action: func(ctx *cli.Context) error {
		return runChunks(ctx, ctx.Args())
	},
}

// runChunks loads every argument concurrently (errgroup bounds the first
// failure's propagation) and then runs each main Proto in program order on
// a single State, so later chunks observe earlier ones' global-table side
// effects.
func runChunks(ctx *cli.Context, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no chunks given")
	}
	s, logger, err := newState(ctx)
	if err != nil {
		return err
	}

	closures := make([]*lua.Closure, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			c, err := s.LoadFile(p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			closures[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	start := time.Now()
	for i, c := range closures {
		if _, err := s.Call(c, nil, -1); err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	logger.Debug("ran %d chunk(s) in %s", len(paths), time.Since(start))

	if ctx.GlobalBool("stats") {
		printStats(logger)
	}
	return nil
}

var disasCommand = cli.Command{
	Name:      "disas",
	Usage:     "disassemble a compiled chunk's main function",
	ArgsUsage: "<chunk.luac>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("usage: probelua disas <chunk.luac>")
		}
		s, _, err := newState(ctx)
		if err != nil {
			return err
		}
		c, err := s.LoadFile(ctx.Args()[0])
		if err != nil {
			return err
		}
		disassemble(c)
		return nil
	},
}

func disassemble(c *lua.Closure) {
	proto := c.Proto()
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"pc", "line", "opcode", "A", "B", "C", "Bx"})
	table.SetAutoWrapText(width > 60)
	for pc, word := range proto.Code {
		in := lua.DecodeInstruction(word)
		table.Append([]string{
			fmt.Sprintf("%d", pc),
			fmt.Sprintf("%d", proto.LineAt(pc)),
			in.Opcode().String(),
			fmt.Sprintf("%d", in.A()),
			fmt.Sprintf("%d", in.B()),
			fmt.Sprintf("%d", in.C()),
			fmt.Sprintf("%d", in.Bx()),
		})
	}
	table.Render()

	for _, child := range proto.Protos {
		fmt.Printf("\nfunction <%s:%d>\n", child.Source, child.LineDefined)
		disassembleProto(child, width)
	}
}

func disassembleProto(proto *lua.Proto, width int) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"pc", "line", "opcode", "A", "B", "C", "Bx"})
	table.SetAutoWrapText(width > 60)
	for pc, word := range proto.Code {
		in := lua.DecodeInstruction(word)
		table.Append([]string{
			fmt.Sprintf("%d", pc),
			fmt.Sprintf("%d", proto.LineAt(pc)),
			in.Opcode().String(),
			fmt.Sprintf("%d", in.A()),
			fmt.Sprintf("%d", in.B()),
			fmt.Sprintf("%d", in.C()),
			fmt.Sprintf("%d", in.Bx()),
		})
	}
	table.Render()
}

var replCommand = cli.Command{
	Name:  "repl",
	Usage: "interactive read-eval-print loop (precompiled chunks only)",
	Action: func(ctx *cli.Context) error {
		return repl(ctx)
	},
}

// repl is deliberately limited: this core has no source-level lexer/parser
// (spec.md's Non-goals exclude a compiler), so each line is expected to be
// a path to a precompiled chunk to load-and-run, not Lua source text. It
// still gives an embedder a live State to poke at interactively.
func repl(ctx *cli.Context) error {
	s, logger, err := newState(ctx)
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		logger.Debug("stdin is not a terminal; running non-interactively")
	}

	for {
		text, err := line.Prompt("probelua> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err.Error() == "EOF" {
				return nil
			}
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		line.AppendHistory(text)

		switch text {
		case "exit", "quit":
			return nil
		case "gc":
			s.GCControl(lua.GCCollect, 0)
			fmt.Println("collected")
			continue
		}

		c, err := s.LoadFile(text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if _, err := s.Call(c, nil, -1); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

var watchCommand = cli.Command{
	Name:      "watch",
	Usage:     "re-run a chunk whenever the directory containing it changes",
	ArgsUsage: "<chunk.luac>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("usage: probelua watch <chunk.luac>")
		}
		return watch(ctx, ctx.Args()[0])
	},
}

// watch re-runs path on every filesystem event under its directory,
// rate-limited so a burst of saves (editors that write-then-rename) only
// triggers one re-run.
func watch(ctx *cli.Context, path string) error {
	events := make(chan notify.EventInfo, 8)
	dir := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		dir = path[:idx]
	} else {
		dir = "."
	}
	if err := notify.Watch(dir+"/...", events, notify.All); err != nil {
		return err
	}
	defer notify.Stop(events)

	limiter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	runOnce := func() {
		s, _, err := newState(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return
		}
		c, err := s.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return
		}
		if _, err := s.Call(c, nil, -1); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}

	runOnce()
	for {
		select {
		case <-events:
			if limiter.Allow() {
				runOnce()
			}
		case <-sigCh:
			return nil
		}
	}
}

func printStats(logger *xlog.Logger) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("stats unavailable: %v", err)
		return
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		logger.Warn("stats unavailable: %v", err)
		return
	}
	cpu, _ := p.CPUPercent()
	fmt.Printf("rss=%dKB cpu=%.1f%%\n", mem.RSS/1024, cpu)
}
