package protocol

import (
	"errors"
	"fmt"

	"github.com/joeycumines/jsonenc"

	"github.com/periphd/periphd/internal/slot"
)

// ErrReplyPending is returned by a slot.SetFunc or slot.GetFunc that hands the operation
// off to something asynchronous (a transport-bridged FPGA register
// write): the dispatcher puts the owning session into
// StateAwaitingReply and does not itself write a response line. The
// plug-in is responsible for writing the eventual reply and clearing the
// resource's PendingOwner via the Host it was given.
var ErrReplyPending = errors.New("protocol: reply is pending")

// Dispatcher routes parsed Commands to the slot table and renders their
// result as wire lines, exactly the verb table of spec.md §4.4 plus the
// additive STATUS and HELP verbs.
type Dispatcher struct {
	Slots *slot.Table
}

// Dispatch executes cmd against the given session and returns the lines
// to write back (not including the trailing prompt byte, which the
// caller appends once dispatch settles the session's state). An empty
// Command (blank line) yields no lines.
func (d *Dispatcher) Dispatch(sess *Session, cmd Command) []string {
	switch cmd.Verb {
	case "":
		return nil
	case "LIST":
		if len(cmd.Operands) > 0 {
			// LIST <slot> emits that slot's long help text.
			return d.help(cmd)
		}
		return d.Slots.List()
	case "HELP":
		return d.help(cmd)
	case "STATUS":
		return d.status()
	case "GET":
		return d.get(sess, cmd)
	case "CAT":
		return d.cat(sess, cmd)
	case "SET":
		return d.set(sess, cmd)
	case "LOADSO":
		return d.loadso(cmd)
	default:
		return []string{NewCodeError(ErrCodeUnknownVerb, fmt.Sprintf("unknown verb %q", cmd.Verb)).Error()}
	}
}

func (d *Dispatcher) help(cmd Command) []string {
	if len(cmd.Operands) == 0 {
		return []string{"LIST GET SET CAT LOADSO STATUS HELP"}
	}
	_, s, err := d.Slots.Resolve(cmd.Operand(0))
	if err != nil {
		return []string{resolveError(err).Error()}
	}
	return []string{s.Help}
}

// resolveError maps a slot.Table.Resolve failure onto the stable code it
// corresponds to: a bad numeric index is its own code (003), while an
// unresolved name is folded into the "unknown plug-in name" code (002)
// since every loaded slot's name is a plug-in's LOADSO name.
func resolveError(err error) *CodeError {
	if errors.Is(err, slot.ErrBadSlotIndex) {
		return NewCodeError(ErrCodeBadSlotIndex, err.Error())
	}
	return NewCodeError(ErrCodeUnknownPluginName, err.Error())
}

func (d *Dispatcher) status() []string {
	var lines []string
	for i := 0; i < d.Slots.Len(); i++ {
		s := d.Slots.Slot(slot.Index(i))
		if s == nil || s.State != slot.Loaded {
			continue
		}
		var b []byte
		b = append(b, `{"slot":`...)
		b = fmt.Appendf(b, "%d", i)
		b = append(b, `,"name":`...)
		b = jsonenc.AppendString(b, s.Name)
		b = append(b, `,"resources":[`...)
		for j := range s.Resources {
			if j > 0 {
				b = append(b, ',')
			}
			r := &s.Resources[j]
			b = append(b, `{"name":`...)
			b = jsonenc.AppendString(b, r.Name)
			b = append(b, `,"flags":`...)
			b = jsonenc.AppendString(b, r.Capabilities.String())
			b = append(b, '}')
		}
		b = append(b, "]}"...)
		lines = append(lines, string(b))
	}
	return lines
}

func (d *Dispatcher) get(sess *Session, cmd Command) []string {
	if len(cmd.Operands) < 2 {
		return []string{NewCodeError(ErrCodeInvalidValue, "GET/CAT require <slot> <resource>").Error()}
	}
	_, s, err := d.Slots.Resolve(cmd.Operand(0))
	if err != nil {
		return []string{resolveError(err).Error()}
	}
	r, ok := s.ResourceByName(cmd.Operand(1))
	if !ok {
		return []string{NewCodeError(ErrCodeUnknownResource, "no matching resource").Error()}
	}
	if !r.CanRead() {
		return []string{NewCodeError(ErrCodeNotReadable, "resource is not readable").Error()}
	}
	if r.PendingOwner != slot.NoPendingOwner {
		return []string{NewCodeError(ErrCodeResourceBusy, "resource is busy").Error()}
	}
	val, err := r.Get()
	if errors.Is(err, ErrReplyPending) {
		r.PendingOwner = slot.PendingOwner(sess.ID)
		sess.State = StateAwaitingReply
		return nil
	}
	if err != nil {
		return []string{NewCodeError(ErrCodeInvalidValue, err.Error()).Error()}
	}
	return []string{val}
}

func (d *Dispatcher) set(sess *Session, cmd Command) []string {
	if len(cmd.Operands) < 3 {
		return []string{NewCodeError(ErrCodeInvalidValue, "SET requires <slot> <resource> <value>").Error()}
	}
	_, s, err := d.Slots.Resolve(cmd.Operand(0))
	if err != nil {
		return []string{resolveError(err).Error()}
	}
	r, ok := s.ResourceByName(cmd.Operand(1))
	if !ok {
		return []string{NewCodeError(ErrCodeUnknownResource, "no matching resource").Error()}
	}
	if !r.CanWrite() {
		return []string{NewCodeError(ErrCodeNotWritable, "resource is not writable").Error()}
	}
	if r.PendingOwner != slot.NoPendingOwner {
		return []string{NewCodeError(ErrCodeResourceBusy, "resource is busy").Error()}
	}
	reply, err := r.Set(cmd.Rest(2))
	if errors.Is(err, ErrReplyPending) {
		r.PendingOwner = slot.PendingOwner(sess.ID)
		sess.State = StateAwaitingReply
		return nil
	}
	if err != nil {
		return []string{NewCodeError(ErrCodeInvalidValue, err.Error()).Error()}
	}
	return []string{reply}
}

func (d *Dispatcher) loadso(cmd Command) []string {
	if len(cmd.Operands) < 1 {
		return []string{NewCodeError(ErrCodeInvalidValue, "LOADSO requires <plugin-name>").Error()}
	}
	idx, err := d.Slots.Load(cmd.Operand(0))
	if err != nil {
		if errors.Is(err, slot.ErrUnknownPlugin) {
			return []string{NewCodeError(ErrCodeUnknownPluginName, err.Error()).Error()}
		}
		// Table-full and plug-in-init-failure both collapse onto the
		// generic invalid-value code: spec.md §7 describes both as an
		// "ERROR 008 equivalent" rather than giving either its own code.
		return []string{NewCodeError(ErrCodeInvalidValue, err.Error()).Error()}
	}
	return []string{fmt.Sprintf("%d", idx)}
}

// cat implements CAT: spec.md §4.4 requires the resource to be
// Broadcastable, then assigns both the session's and the resource's
// subscribe key to (slot_index<<16)|resource_index and puts the session
// into StateMonitoring. Success returns no lines: CAT never prompts, the
// caller (server.go) takes that as its cue to skip the trailing prompt
// byte entirely.
func (d *Dispatcher) cat(sess *Session, cmd Command) []string {
	if len(cmd.Operands) < 2 {
		return []string{NewCodeError(ErrCodeInvalidValue, "CAT requires <slot> <resource>").Error()}
	}
	slotIdx, s, err := d.Slots.Resolve(cmd.Operand(0))
	if err != nil {
		return []string{resolveError(err).Error()}
	}
	resIdx, r, ok := s.ResourceIndexByName(cmd.Operand(1))
	if !ok {
		return []string{NewCodeError(ErrCodeUnknownResource, "no matching resource").Error()}
	}
	if !r.CanBroadcast() {
		// spec.md's closed 001-008 table has no dedicated "not
		// broadcastable" code; not-readable is the closest read-oriented
		// bucket, since CAT subscribes to a read stream.
		return []string{NewCodeError(ErrCodeNotReadable, "resource is not broadcastable").Error()}
	}
	key := slot.CompositeBroadcastKey(slotIdx, resIdx)
	sess.SubscribeKey = key
	r.BroadcastKey = key
	sess.State = StateMonitoring
	if r.OnSubscribe != nil {
		r.OnSubscribe()
	}
	return nil
}

