package events

import (
	"github.com/google/uuid"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/log"
)

// BoundData is the payload of owner.bound.
type BoundData struct {
	Explicit bool `json:"explicit"`
}

// FailureData is the payload of work.failed. Ticket identifies the failure
// across the hub, logs, and the journal.
type FailureData struct {
	Ticket string `json:"ticket_id"`
	Loop   string `json:"loop"`
	Error  string `json:"error"`
}

// Observer publishes dispatcher lifecycle notifications to a Hub.
type Observer struct {
	hub *Hub
	// Dispatches controls whether every dispatch is published. Busy owners
	// usually leave it off and rely on stats instead.
	Dispatches bool
}

var _ affinity.Observer = (*Observer)(nil)

func NewObserver(hub *Hub, dispatches bool) *Observer {
	return &Observer{hub: hub, Dispatches: dispatches}
}

func (o *Observer) OnBound(explicit bool) {
	o.hub.Publish(TypeOwnerBound, BoundData{Explicit: explicit})
}

func (o *Observer) OnNoOp() {
	o.hub.Publish(TypeOwnerNoOp, nil)
}

func (o *Observer) OnDispatch(mode affinity.Mode) {
	if !o.Dispatches {
		return
	}
	switch mode {
	case affinity.ModeSync:
		o.hub.Publish(TypeDispatchSync, nil)
	case affinity.ModePosted:
		o.hub.Publish(TypeDispatchPosted, nil)
	}
}

// FailureReporter returns an owner loop error handler publishing work.failed.
// Each failure gets a ticket that is logged alongside the event ID.
func FailureReporter(hub *Hub, loop string) func(error) {
	return func(err error) {
		ticket := uuid.NewString()
		ev := hub.Publish(TypeWorkFailed, FailureData{
			Ticket: ticket,
			Loop:   loop,
			Error:  err.Error(),
		})
		log.WithTicket(ticket).Warn("work failure reported", "loop", loop, "event_id", ev.ID, "error", err)
	}
}
