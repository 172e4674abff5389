// Package emulated provides an in-process Platform with no native code.
//
// Memory is a bump-allocated arena in a private 64-bit address range; freed
// blocks are never reused, so access through a dangling pointer fails with
// an OutOfBounds error instead of silently reading newer data. Function
// pointers are entries in a table of Go funcs with uintptr-only signatures,
// called through reflection with an exact arity check.
//
// Authoring helpers build the native side a test needs:
//
//	p := emulated.New()
//	widget, _ := p.NewObject(emulated.Spec{ClassName: "Demo.Widget"})
//	factory, _ := p.NewFactory("Demo.Widget", func() (*emulated.Object, error) {
//		return p.NewObject(emulated.Spec{ClassName: "Demo.Widget"})
//	})
//	p.RegisterLibrary("Demo.dll").AddFactory("Demo.Widget", factory)
//
// Libraries are matched by base file name, so the bridge's directory
// qualification is observable through Library.Paths without affecting
// lookup. The broker, apartment cookies and string heap are counted so that
// tests can assert exact native call sequences.
package emulated
