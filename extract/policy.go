package extract

import (
	"github.com/dhcgn/mbox-to-archive/filter"
	"github.com/dhcgn/mbox-to-archive/model"
	"github.com/dhcgn/mbox-to-archive/source"
)

// Action is what a Policy decides for one message.
type Action int

const (
	// ActionWrite materializes the message into an archive unit.
	ActionWrite Action = iota
	// ActionCount tallies the message without writing it.
	ActionCount
	// ActionExclude leaves the message out of counts and output.
	ActionExclude
)

func (a Action) String() string {
	switch a {
	case ActionCount:
		return "count"
	case ActionExclude:
		return "exclude"
	default:
		return "write"
	}
}

// Policy decides per message whether it is written, counted or excluded.
type Policy interface {
	Decide(msg *model.Message, h source.MessageHandle) (Action, error)
}

type PolicyFunc func(msg *model.Message, h source.MessageHandle) (Action, error)

func (f PolicyFunc) Decide(msg *model.Message, h source.MessageHandle) (Action, error) {
	return f(msg, h)
}

var (
	MaterializeAll Policy = PolicyFunc(func(*model.Message, source.MessageHandle) (Action, error) {
		return ActionWrite, nil
	})
	StatisticsOnly Policy = PolicyFunc(func(*model.Message, source.MessageHandle) (Action, error) {
		return ActionCount, nil
	})
)

// FilterPolicy excludes messages rejected by f and defers to next for the rest.
// A nil next means MaterializeAll.
func FilterPolicy(f *filter.Filter, next Policy) Policy {
	if next == nil {
		next = MaterializeAll
	}
	if f == nil || !f.Active() {
		return next
	}
	return PolicyFunc(func(msg *model.Message, h source.MessageHandle) (Action, error) {
		raw, err := h.Raw()
		if err != nil {
			return ActionExclude, err
		}
		if !f.AllowsMessage(raw) {
			return ActionExclude, nil
		}
		return next.Decide(msg, h)
	})
}
