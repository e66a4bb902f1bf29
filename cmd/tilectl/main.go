// Command tilectl inspects tile compression and checks projection updates
// on real images.
//
// Usage:
//
//	tilectl stats photo.png scan.tiff
//	tilectl --workers 4 --swap-dir /tmp --budget 16 verify photo.jpg --out projection.png
package main

import (
	"fmt"
	"log/slog"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/alecthomas/kong"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/term"

	"github.com/gogpu/tilepipe"
	"github.com/gogpu/tilepipe/scheduler"
	"github.com/gogpu/tilepipe/tilestore"
)

// Globals are flags shared by every command.
type Globals struct {
	Version kong.VersionFlag `help:"Print the version and exit"`
	Verbose bool   `help:"Log debug diagnostics to stderr" short:"v"`
	Workers int    `help:"Tile workers, 0 uses GOMAXPROCS" default:"0"`
	SwapDir string `help:"Directory for the swap file; tiles are swapped in memory if empty" type:"existingdir"`
	Budget  int    `help:"Resident tiles per store before eviction, 0 disables eviction" default:"0"`
}

// CLI is the tilectl command line.
type CLI struct {
	Globals

	Stats  StatsCmd  `cmd:"" help:"Report tile compression ratios of images"`
	Verify VerifyCmd `cmd:"" help:"Check that strip updates match a full refresh"`
}

// storage is the tile store configuration selected by the global flags.
type storage struct {
	opts []tilestore.Option
	swap *tilestore.FileSwap
}

// storage opens the swap file, if any. The caller must Close the result.
func (g *Globals) storage() (*storage, error) {
	st := &storage{}
	if g.SwapDir != "" {
		swap, err := tilestore.NewFileSwap(g.SwapDir)
		if err != nil {
			return nil, err
		}
		st.swap = swap
		st.opts = append(st.opts, tilestore.WithSwapper(swap))
	}
	if g.Budget > 0 {
		st.opts = append(st.opts, tilestore.WithMemoryBudget(g.Budget))
	}
	return st, nil
}

// swapped returns the live bytes of the swap file.
func (s *storage) swapped() int64 {
	if s.swap == nil {
		return 0
	}
	total, garbage := s.swap.Size()
	return total - garbage
}

func (s *storage) Close() {
	if s.swap == nil {
		return
	}
	if err := s.swap.Close(); err != nil {
		slog.Error("could not close swap file", "path", s.swap.Path(), "error", err)
	}
}

func (g *Globals) schedulerOptions() []scheduler.Option {
	return []scheduler.Option{scheduler.WithWorkers(g.Workers)}
}

// newLogger returns a text logger on terminals and a JSON logger otherwise.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tilectl"),
		kong.Description("Tile codec and projection scheduler diagnostics."),
		kong.UsageOnError(),
		kong.Vars{"version": tilepipe.Version},
	)

	logger := newLogger(cli.Verbose)
	slog.SetDefault(logger)
	tilepipe.SetLogger(logger)

	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "tilectl:", err)
		os.Exit(1)
	}
}
