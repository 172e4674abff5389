package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/activation"
	"github.com/wippyai/winrt-runtime/delegate"
	"github.com/wippyai/winrt-runtime/event"
	"github.com/wippyai/winrt-runtime/hstring"
	"github.com/wippyai/winrt-runtime/iid"
	"github.com/wippyai/winrt-runtime/module"
)

// SetAllLoggers installs l into every package of the bridge, each under
// its own name.
func SetAllLoggers(l *zap.Logger) {
	SetLogger(l.Named("runtime"))
	abi.SetLogger(l.Named("abi"))
	activation.SetLogger(l.Named("activation"))
	delegate.SetLogger(l.Named("delegate"))
	event.SetLogger(l.Named("event"))
	hstring.SetLogger(l.Named("hstring"))
	iid.SetLogger(l.Named("iid"))
	module.SetLogger(l.Named("module"))
}
