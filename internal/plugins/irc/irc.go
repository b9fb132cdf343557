// Package irc implements a purely local-state peripheral modeling an IRC
// client's last-seen channel topic and nickname — no actual network
// connection, just a second worked example of a multi-resource plug-in
// exercising independent capability sets per resource.
package irc

import (
	"strings"

	"github.com/periphd/periphd/internal/slot"
)

// Name is the plug-in's registered LOADSO name.
const Name = "irc"

func init() {
	slot.Register(Name, func() slot.Plugin { return &Plugin{} })
}

// Plugin holds irc's local state.
type Plugin struct {
	host    slot.Host
	nick    string
	topic   string
	history []string

	// topicRes is kept so setTopic can broadcast under CAT's assigned
	// key rather than one the plug-in invents for itself.
	topicRes *slot.Resource
}

// Initialize implements slot.Plugin.
func (p *Plugin) Initialize(s *slot.Slot, host slot.Host) error {
	p.host = host
	p.nick = "guest"

	s.Name = Name
	s.Description = "local-state IRC channel mirror"
	s.Help = "GET <slot> nick|topic|history | SET <slot> nick <name> | SET <slot> topic <text>"
	s.Resources = []slot.Resource{
		{
			Name:         "nick",
			Capabilities: slot.Readable | slot.Writable,
			Get:          func() (string, error) { return p.nick, nil },
			Set:          p.setNick,
		},
		{
			Name:         "topic",
			Capabilities: slot.Readable | slot.Writable | slot.Broadcastable,
			Get:          func() (string, error) { return p.topic, nil },
			Set:          p.setTopic,
		},
		{
			Name:         "history",
			Capabilities: slot.Readable,
			Get:          func() (string, error) { return strings.Join(p.history, "; "), nil },
		},
	}
	p.topicRes = &s.Resources[1]
	s.Private = p
	return nil
}

func (p *Plugin) setNick(operand string) (string, error) {
	p.nick = operand
	p.record(p.nick + " renamed")
	return "OK", nil
}

func (p *Plugin) setTopic(operand string) (string, error) {
	p.topic = operand
	p.record("topic: " + operand)
	p.host.Broadcast(p.topicRes.BroadcastKey, p.topic)
	return "OK", nil
}

func (p *Plugin) record(event string) {
	const maxHistory = 16
	p.history = append(p.history, event)
	if len(p.history) > maxHistory {
		p.history = p.history[len(p.history)-maxHistory:]
	}
}
