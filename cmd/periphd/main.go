// Command periphd runs the peripheral control daemon: a single-threaded
// reactor, a fixed table of compiled-in plug-in slots, and a line-oriented
// TCP control protocol for talking to them.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/periphd/periphd/internal/config"
	"github.com/periphd/periphd/internal/daemon"
	"github.com/periphd/periphd/internal/logging"
	"github.com/periphd/periphd/internal/slot"
	"github.com/periphd/periphd/internal/transport"

	_ "github.com/periphd/periphd/internal/plugins/demo"
	_ "github.com/periphd/periphd/internal/plugins/gamepad"
	_ "github.com/periphd/periphd/internal/plugins/irc"
	"github.com/periphd/periphd/internal/plugins/fpgabridge"
)

func main() {
	bindAddress := flag.String("a", "0.0.0.0", "address to bind the control socket to")
	port := flag.Int("p", 8888, "port to bind the control socket to")
	staticPlugins := flag.String("plugins", "hellodemo", "comma-separated plug-in names to pre-load into slots at startup")
	flag.Parse()

	log := logging.New(os.Stderr)

	// fpgabridge's compiled-in factory has no transport of its own; give
	// it an in-process loopback until a real downstream transport is
	// wired in (see SPEC_FULL.md for why that transport is out of scope).
	slot.Register(fpgabridge.Name, func() slot.Plugin { return fpgabridge.New(transport.NewLoopback()) })

	cfg := config.New(
		config.WithBindAddress(*bindAddress),
		config.WithPort(*port),
		config.WithStaticPlugins(splitNonEmpty(*staticPlugins)...),
	)

	d := daemon.New(cfg, log)
	d.LoadStaticPlugins(cfg)
	if err := d.Listen(cfg); err != nil {
		log.Fatal("failed to bind control socket", logging.Err(err))
		os.Exit(1)
	}

	addr, _ := d.Server.Addr()
	log.Info("periphd listening", logging.Str("addr", addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := d.Run(ctx); err != nil {
		log.Fatal("reactor exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
