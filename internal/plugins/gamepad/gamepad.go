// Package gamepad implements a purely local-state peripheral modeling a
// game controller's button mask and analog stick position, a third
// worked example exercising a resource whose Set validates its operand
// rather than accepting anything.
package gamepad

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/periphd/periphd/internal/slot"
)

// Name is the plug-in's registered LOADSO name.
const Name = "gamepad"

func init() {
	slot.Register(Name, func() slot.Plugin { return &Plugin{} })
}

// Plugin holds gamepad's local state: a button bitmask and an (x, y)
// stick position in the range [-100, 100].
type Plugin struct {
	host    slot.Host
	buttons uint16
	stickX  int
	stickY  int

	// buttonsRes is kept so setButtons can broadcast under CAT's
	// assigned key rather than one the plug-in invents for itself.
	buttonsRes *slot.Resource
}

// Initialize implements slot.Plugin.
func (p *Plugin) Initialize(s *slot.Slot, host slot.Host) error {
	p.host = host

	s.Name = Name
	s.Description = "local-state game controller"
	s.Help = "GET <slot> buttons|stick | SET <slot> buttons <uint16> | SET <slot> stick <x> <y>"
	s.Resources = []slot.Resource{
		{
			Name:         "buttons",
			Capabilities: slot.Readable | slot.Writable | slot.Broadcastable,
			Get:          func() (string, error) { return strconv.Itoa(int(p.buttons)), nil },
			Set:          p.setButtons,
		},
		{
			Name:         "stick",
			Capabilities: slot.Readable | slot.Writable,
			Get:          p.getStick,
			Set:          p.setStick,
		},
	}
	p.buttonsRes = &s.Resources[0]
	s.Private = p
	return nil
}

func (p *Plugin) setButtons(operand string) (string, error) {
	v, err := strconv.ParseUint(operand, 10, 16)
	if err != nil {
		return "", fmt.Errorf("buttons requires a uint16: %w", err)
	}
	p.buttons = uint16(v)
	p.host.Broadcast(p.buttonsRes.BroadcastKey, operand)
	return "OK", nil
}

func (p *Plugin) getStick() (string, error) {
	return fmt.Sprintf("%d %d", p.stickX, p.stickY), nil
}

func (p *Plugin) setStick(operand string) (string, error) {
	fields := strings.Fields(operand)
	if len(fields) != 2 {
		return "", fmt.Errorf("stick requires two operands: <x> <y>")
	}
	x, err := parseAxis(fields[0])
	if err != nil {
		return "", err
	}
	y, err := parseAxis(fields[1])
	if err != nil {
		return "", err
	}
	p.stickX, p.stickY = x, y
	return "OK", nil
}

func parseAxis(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("axis value %q is not an integer: %w", s, err)
	}
	if v < -100 || v > 100 {
		return 0, fmt.Errorf("axis value %d out of range [-100, 100]", v)
	}
	return v, nil
}
