package model

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/kubusdb/kubus/pkg/constants"
)

// Lifecycle states.
const (
	StateNew       = "new"
	StatePersisted = "persisted"
	StateDeleted   = "deleted"
)

const (
	eventSave   = "save"
	eventDelete = "delete"
)

var lifecycleEvents = fsm.Events{
	{Name: eventSave, Src: []string{StateNew, StatePersisted}, Dst: StatePersisted},
	{Name: eventDelete, Src: []string{StatePersisted}, Dst: StateDeleted},
}

func lifecycle(d *Document) *fsm.FSM {
	return fsm.NewFSM(d.State(), lifecycleEvents, fsm.Callbacks{})
}

// guard fails when the document can no longer be mutated.
func guard(d *Document) error {
	if d.State() == StateDeleted {
		return constants.ErrDeleted
	}
	return nil
}

// transition moves d along event. Saving a persisted document stays put.
func transition(ctx context.Context, d *Document, event string) error {
	f := lifecycle(d)
	if err := f.Event(ctx, event); err != nil {
		var noop fsm.NoTransitionError
		if !errors.As(err, &noop) {
			return err
		}
	}
	d.state = f.Current()
	return nil
}
