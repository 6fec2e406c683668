package domain

// EventBus carries gateway events from the platform adapter to the dispatcher.
type EventBus interface {
	Publish(ev Event)
	Subscribe() <-chan Event
	Close()
}
