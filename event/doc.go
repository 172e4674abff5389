// Package event subscribes host handlers to native events.
//
// A Source moves between two states. Unsubscribed: no bridge exists and
// the native side knows nothing about the host. Subscribed: one bridge is
// registered through the native add method and its token is kept. The
// first Subscribe performs the add; the Unsubscribe that removes the last
// handler performs the remove and releases the bridge. Both happen under
// the source lock, so each transition runs exactly once even when
// subscribers race.
//
// Every bridge is tagged with a generation. An invocation from a bridge
// whose generation is no longer current is dropped, so a native callback
// that arrives after the last unsubscribe reaches no handler. Dispatch
// reads an immutable snapshot of the generation and handlers instead of
// taking the lock, so a component may raise the event from inside its add
// or remove. A Source dropped without Close is unsubscribed when it is
// collected.
//
// Payloads are built from the raw Invoke arguments by a Decoder made of
// per-argument Unmarshalers:
//
//	src, err := event.New("Changed", obj, adapter,
//		event.Args2(event.String, event.Int32),
//		event.Options{Add: "add_Changed", Remove: "remove_Changed"})
//	tok, err := src.Subscribe(func(p event.Pair[string, int32]) error { ... })
package event
