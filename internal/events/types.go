package events

// Event enumerates high-level topics inside the engine.
type Event string

const (
	EventCandle           Event = "candle"
	EventSignalCreated    Event = "signal.created"
	EventSignalDelivered  Event = "signal.delivered"
	EventSignalFailed     Event = "signal.failed"
	EventSignalExpired    Event = "signal.expired"
	EventPositionOpened   Event = "position.opened"
	EventPositionClosed   Event = "position.closed"
	EventReconcileClosure Event = "reconcile.closure"
	EventEvaluation       Event = "evaluation.result"
)
