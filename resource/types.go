package resource

// Handle identifies one tracked resource. Handle 0 is never issued.
type Handle uint32

// Kind is the category of a tracked resource.
type Kind uint8

const (
	KindObject Kind = iota + 1
	KindFactory
	KindModule
	KindBridge
	KindSource
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindFactory:
		return "factory"
	case KindModule:
		return "module"
	case KindBridge:
		return "bridge"
	case KindSource:
		return "source"
	}
	return "unknown"
}

// EventType is a lifecycle transition.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

func (t EventType) String() string {
	if t == EventCreated {
		return "created"
	}
	return "released"
}

// Event describes one lifecycle transition.
type Event struct {
	Value  any
	Name   string
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Releaser is implemented by values the tracker can release on Close.
type Releaser interface {
	Release() error
}

// Closer is implemented by values the tracker closes on Close.
type Closer interface {
	Close() error
}
