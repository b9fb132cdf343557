// Command periphctl is the daemon's thin CLI client. One binary serves
// five invocation names -- <prefix>get, <prefix>set, <prefix>cat,
// <prefix>list, <prefix>loadso -- chosen by the suffix of argv[0], so a
// deployment installs it as five differently-named symlinks (or hardlinks)
// to the same executable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/periphd/periphd/internal/client"
)

// verbSuffixes lists every CLI invocation name's verb, longest first so a
// future ambiguous pair would resolve to its more specific match.
var verbSuffixes = []string{"loadso", "list", "cat", "get", "set"}

func verbFromArgv0(argv0 string) (string, bool) {
	base := strings.ToLower(filepath.Base(argv0))
	for _, v := range verbSuffixes {
		if strings.HasSuffix(base, v) {
			return strings.ToUpper(v), true
		}
	}
	return "", false
}

func main() {
	verb, ok := verbFromArgv0(os.Args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "periphctl: invocation name %q does not end in get, set, cat, list, or loadso\n", os.Args[0])
		os.Exit(2)
	}

	args, addr, port, help := parseFlags(os.Args[1:])
	if help {
		fmt.Printf("%s: sends a %s command to a periphd daemon\nusage: %s [-a addr] [-p port] [args...]\n",
			filepath.Base(os.Args[0]), verb, filepath.Base(os.Args[0]))
		return
	}

	c, err := client.Dial(addr, port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "periphctl:", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.SendCommand(verb, args); err != nil {
		fmt.Fprintln(os.Stderr, "periphctl:", err)
		os.Exit(1)
	}

	// A CAT never receives a prompt; Ctrl-C closes the connection so
	// StreamUntilPrompt returns instead of blocking forever.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	if err := c.StreamUntilPrompt(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "periphctl:", err)
		os.Exit(1)
	}
}

// parseFlags hand-rolls -a/-p/-h parsing instead of the flag package so
// the remaining, unflagged operands can contain arbitrary text (including
// tokens that look like flags, e.g. SET <slot> message -1) without the
// flag package rejecting them as unknown options once it stops seeing
// registered flags at the front of the argument list.
func parseFlags(args []string) (rest []string, addr string, port int, help bool) {
	addr, port = "127.0.0.1", 8870
	i := 0
	for ; i < len(args); i++ {
		switch {
		case args[i] == "-a" && i+1 < len(args):
			i++
			addr = args[i]
		case args[i] == "-p" && i+1 < len(args):
			i++
			port = atoiOrDefault(args[i], port)
		case args[i] == "-h":
			help = true
		default:
			return append(rest, args[i:]...), addr, port, help
		}
	}
	return rest, addr, port, help
}

func atoiOrDefault(s string, def int) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
