// Package runtime is the entry point of the bridge.
//
// A Runtime owns one module cache, one broker reference, one factory
// resolver and one set of delegate adapters for a platform:
//
//	p, err := native.New()
//	rt, err := runtime.New(p, cfg)
//	defer rt.Close()
//
//	widget, err := rt.Activate("Contoso.Widgets.Widget")
//	statics, err := rt.Statics("Contoso.Widgets.Widget", widgetStatics)
//
//	src, err := runtime.NewSource(rt, "Changed", events, handlerType,
//		event.Args2(event.Object(abi.IInspectable), event.Int32),
//		event.Options{Add: "add_Changed", Remove: "remove_Changed"})
//
// Everything handed out is tracked; Close releases what callers did not,
// newest first, then drops the memoized factories so their modules unload.
package runtime
