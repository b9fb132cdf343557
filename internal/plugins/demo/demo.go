// Package demo implements "hellodemo", the worked example from
// SPEC_FULL.md §8's round-trip scenario: a single resource holding an
// in-memory string, readable, writable, and broadcastable so it can
// exercise GET/SET, the hello round-trip property, and subscribe
// cleanup all from one plug-in.
package demo

import "github.com/periphd/periphd/internal/slot"

// Name is the plug-in's registered LOADSO name.
const Name = "hellodemo"

func init() {
	slot.Register(Name, func() slot.Plugin { return &Plugin{} })
}

// Plugin holds the one piece of state hellodemo exposes.
type Plugin struct {
	host    slot.Host
	message string

	// messageRes is this plug-in's own entry in the slot's resource
	// table, kept so setMessage can broadcast under whatever key CAT
	// assigned it (0 until a session subscribes).
	messageRes *slot.Resource
}

// Initialize implements slot.Plugin.
func (p *Plugin) Initialize(s *slot.Slot, host slot.Host) error {
	p.host = host
	p.message = "hello"

	s.Name = Name
	s.Description = "minimal demo peripheral holding one string"
	s.Help = "GET <slot> message | SET <slot> message <text>"
	s.Resources = []slot.Resource{
		{
			Name:         "message",
			Capabilities: slot.Readable | slot.Writable | slot.Broadcastable,
			Get:          p.getMessage,
			Set:          p.setMessage,
		},
	}
	p.messageRes = &s.Resources[0]
	s.Private = p
	return nil
}

func (p *Plugin) getMessage() (string, error) {
	return p.message, nil
}

func (p *Plugin) setMessage(operand string) (string, error) {
	p.message = operand
	p.host.Broadcast(p.messageRes.BroadcastKey, p.message)
	return "OK", nil
}
