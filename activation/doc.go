// Package activation resolves activation factories by type name.
//
// A Resolver is built over explicit registries, a module.Cache and an
// optional module.Broker, so tests can hand it an emulated platform. See
// Resolver for the search order.
//
//	r := activation.NewWithDefaults(cache, broker)
//	f, err := r.Resolve("Windows.Foundation.Uri")
//	inst, err := f.ActivateInstance()
//	defer inst.Release()
//
// Factories are shared and memoized weakly. Callers hold the *Factory for
// as long as they use it and never release it themselves; Resolver.Close
// releases the ones still alive at shutdown.
package activation
