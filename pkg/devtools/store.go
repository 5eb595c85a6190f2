package devtools

import (
	"fmt"

	"github.com/vango-dev/connect/pkg/connect"
	"github.com/vango-dev/connect/pkg/store"
)

// trackedStore publishes a dispatch event for every action that reaches the
// wrapped store.
type trackedStore[S any] struct {
	connect.Store[S]
	hub *Hub
}

// Track wraps st so dispatches show up in the hub's event stream. Mount
// consumers with the returned store (or a Provider around it) to see the
// dispatch that caused each render.
//
// The dispatch event is published before the store notifies, so it precedes
// the derive and render events it causes.
func Track[S any](hub *Hub, st connect.Store[S]) connect.Store[S] {
	return &trackedStore[S]{Store: st, hub: hub}
}

func (t *trackedStore[S]) Dispatch(action any) error {
	t.hub.Publish(Event{Type: EventDispatch, Action: actionType(action)})
	err := t.Store.Dispatch(action)
	if err != nil {
		t.hub.Publish(Event{Type: EventDispatch, Action: actionType(action), Error: err.Error()})
	}
	return err
}

func actionType(action any) string {
	switch a := action.(type) {
	case store.Action:
		return a.Type
	case *store.Action:
		if a != nil {
			return a.Type
		}
	case string:
		return a
	case fmt.Stringer:
		return a.String()
	}
	return fmt.Sprintf("%T", action)
}
