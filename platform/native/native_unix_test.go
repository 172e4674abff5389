//go:build darwin || linux || freebsd

package native

import (
	stderrors "errors"
	"runtime"
	"testing"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/hstring"
)

func newPlatform(t *testing.T) *Platform {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Skipf("platform unavailable: %v", err)
	}
	return p
}

func TestMemory(t *testing.T) {
	p := newPlatform(t)
	addr, err := p.Alloc(32, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Free(addr)

	zero, err := p.Read(addr, 32)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range zero {
		if b != 0 {
			t.Fatalf("byte %d = %d, want zeroed memory", i, b)
		}
	}

	if err := p.WriteU32(addr, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if err := p.WritePtr(addr+8, addr); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteU16(addr+16, 0xbeef); err != nil {
		t.Fatal(err)
	}
	if v, _ := p.ReadU32(addr); v != 0xdeadbeef {
		t.Errorf("ReadU32 = %#x", v)
	}
	if v, _ := p.ReadPtr(addr + 8); v != addr {
		t.Errorf("ReadPtr = %#x", v)
	}
	if v, _ := p.ReadU16(addr + 16); v != 0xbeef {
		t.Errorf("ReadU16 = %#x", v)
	}
	if p.Blocks() != 1 {
		t.Errorf("Blocks = %d", p.Blocks())
	}

	if _, err := p.ReadU64(0); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("null read = %v", err)
	}
	if _, err := p.Alloc(8, 64); err == nil {
		t.Error("over-aligned allocation accepted")
	}
}

func TestHostStrings(t *testing.T) {
	p := newPlatform(t)
	s, err := hstring.New(p, "grüße")
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Value()
	if err != nil || got != "grüße" {
		t.Errorf("Value = %q, %v", got, err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if p.Live() != 0 {
		t.Errorf("live strings = %d", p.Live())
	}
}

func TestLoader(t *testing.T) {
	p := newPlatform(t)
	if _, err := p.LoadLibrary("/nonexistent/Contoso.Widgets.so"); errors.HResultOf(err) != errors.ModuleNotFound {
		t.Errorf("LoadLibrary(missing) = %v", err)
	}

	libc, err := p.LoadLibrary(libcNames[runtime.GOOS])
	if err != nil {
		t.Fatal(err)
	}
	defer p.FreeLibrary(libc)

	if _, err := p.GetProcAddress(libc, "DllGetActivationFactory"); errors.HResultOf(err) != errors.ProcNotFound {
		t.Errorf("GetProcAddress(missing) = %v", err)
	}
	strlen, err := p.GetProcAddress(libc, "strlen")
	if err != nil {
		t.Fatal(err)
	}
	buf, err := p.Alloc(8, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Free(buf)
	_ = p.Write(buf, []byte("winrt\x00"))
	if n := p.Call(strlen, buf); n != 5 {
		t.Errorf("strlen = %d", n)
	}
}

func TestBrokerKnowsNoClasses(t *testing.T) {
	p := newPlatform(t)
	cookie, hr := p.InitializeBroker()
	if hr != 0 {
		t.Fatalf("InitializeBroker = %#x", hr)
	}
	if _, hr := p.GetActivationFactory(0, 0); errors.HResult(hr) != errors.ClassNotRegistered {
		t.Errorf("GetActivationFactory = %#x", hr)
	}
	if hr := p.ShutdownBroker(cookie); hr != 0 {
		t.Errorf("ShutdownBroker = %#x", hr)
	}
	if hr := p.ShutdownBroker(cookie); hr == 0 {
		t.Error("cookie accepted twice")
	}
}

func TestNewCallbackRejectsShape(t *testing.T) {
	p := newPlatform(t)
	if _, err := p.NewCallback(func(int) uintptr { return 0 }); !stderrors.Is(err, errors.ErrArgument) {
		t.Errorf("NewCallback = %v", err)
	}
	if _, err := p.NewCallback(42); !stderrors.Is(err, errors.ErrArgument) {
		t.Errorf("NewCallback(non-func) = %v", err)
	}
}
