// Package resource tracks the live resources of a runtime.
//
// Every object, factory and event source the runtime hands out is
// recorded under a Handle together with its Kind and a display name.
// Loaded modules and live delegate bridges are recorded by the module
// cache and the delegate adapters, which forget them when they unload or
// retire them.
// Observers see each creation and release, which is how diagnostics and
// the explorer follow what is alive:
//
//	tr := resource.NewTracker()
//	tr.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//		log.Printf("%s %s %s", e.Kind, e.Type, e.Name)
//	}))
//
// Close releases whatever is still tracked and releasable, newest first,
// so instances go before the factories they depend on.
package resource
