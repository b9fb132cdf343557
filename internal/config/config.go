// Package config assembles daemon-wide settings through functional
// options, the same shape the teacher uses for its event loop
// (eventloop.LoopOption / eventloop.WithStrictMicrotaskOrdering).
package config

import "time"

// Config holds every daemon-wide tunable. Zero value is not valid; use
// New to obtain one with defaults applied.
type Config struct {
	BindAddress string
	Port        int

	// VerbPrefixes lists CLI invocation names, e.g. "cmd", "get", "set",
	// "cat", "log". At least one is required. The protocol dispatcher does
	// not read it: its verb table is fixed.
	VerbPrefixes []string

	// MaxSessions bounds the session table; a new connection beyond this
	// is refused rather than the table growing.
	MaxSessions int

	// MaxSlots bounds the fixed peripheral slot table.
	MaxSlots int

	// SessionReadBufferSize is the fixed per-session line buffer size in
	// bytes. A line exceeding it is treated as a protocol violation.
	SessionReadBufferSize int

	// NoAckTimeout holds an awaiting-reply timeout. No component reads it:
	// fpgabridge arms its watchdog with its own fixed 100ms window, and a
	// watchdog expiry only logs a warning; it does not release the session.
	NoAckTimeout time.Duration

	// IdlePollBudget bounds how long the reactor may block between ticks
	// when nothing is scheduled.
	IdlePollBudget time.Duration

	// StaticPlugins lists the compiled-in plug-in names that should be
	// pre-loaded into slots at startup, in order.
	StaticPlugins []string
}

// Option mutates a Config during New.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithBindAddress sets the listen address (default "0.0.0.0").
func WithBindAddress(addr string) Option {
	return optionFunc(func(c *Config) { c.BindAddress = addr })
}

// WithPort sets the listen port (default 8888).
func WithPort(port int) Option {
	return optionFunc(func(c *Config) { c.Port = port })
}

// WithVerbPrefixes overrides the accepted CLI invocation names.
func WithVerbPrefixes(prefixes ...string) Option {
	return optionFunc(func(c *Config) {
		if len(prefixes) > 0 {
			c.VerbPrefixes = append([]string(nil), prefixes...)
		}
	})
}

// WithMaxSessions bounds the session table (default 64).
func WithMaxSessions(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.MaxSessions = n
		}
	})
}

// WithMaxSlots bounds the peripheral slot table (default 64).
func WithMaxSlots(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.MaxSlots = n
		}
	})
}

// WithSessionReadBufferSize sets the per-session line buffer size
// (default 4096 bytes).
func WithSessionReadBufferSize(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.SessionReadBufferSize = n
		}
	})
}

// WithNoAckTimeout sets the awaiting-reply watchdog timeout (default 5s).
func WithNoAckTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.NoAckTimeout = d
		}
	})
}

// WithIdlePollBudget sets the reactor's idle poll bound (default 1s).
func WithIdlePollBudget(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.IdlePollBudget = d
		}
	})
}

// WithStaticPlugins lists compiled-in plug-ins to pre-load at startup.
func WithStaticPlugins(names ...string) Option {
	return optionFunc(func(c *Config) {
		c.StaticPlugins = append([]string(nil), names...)
	})
}

// New returns a Config with defaults applied, then overridden by opts in
// order.
func New(opts ...Option) *Config {
	c := &Config{
		BindAddress:           "0.0.0.0",
		Port:                  8888,
		VerbPrefixes:          []string{"cmd", "get", "set", "cat", "log", "loadso", "list", "help", "status"},
		MaxSessions:           64,
		MaxSlots:              64,
		SessionReadBufferSize: 4096,
		NoAckTimeout:          5 * time.Second,
		IdlePollBudget:        time.Second,
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}
