package iid

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// Namespace is the fixed namespace hashed with every parameterized
// signature.
var Namespace = uuid.MustParse("11f47ad5-7b73-42c0-abae-878b1e16adee")

// FromSignature derives the identifier of a canonical signature: SHA-1
// over Namespace and the UTF-8 signature, truncated to 128 bits with the
// version 5 and RFC variant bits set.
func FromSignature(sig string) guid.GUID {
	return guid.FromUUID(uuid.NewSHA1(Namespace, []byte(sig)))
}

// Of returns the identifier of an interface type. Interfaces and delegates
// carry their published identifier; runtime classes use their default
// interface; parameterized types are derived from their signature.
func Of(t Type) (guid.GUID, error) {
	switch v := t.(type) {
	case Interface:
		return v.IID, nil
	case Delegate:
		return v.IID, nil
	case RuntimeClass:
		if v.Default == nil {
			return guid.Nil, errors.InvalidInput(errors.PhaseSignature, "runtime class "+v.Name+" has no default interface")
		}
		return Of(v.Default)
	case Parameterized:
		return FromSignature(v.Signature()), nil
	case nil:
		return guid.Nil, errors.InvalidInput(errors.PhaseSignature, "nil type")
	}
	return guid.Nil, errors.Unsupported(errors.PhaseSignature, "identifier of "+t.String())
}

// Cache memoizes derived identifiers by signature.
type Cache struct {
	mu     sync.RWMutex
	ids    map[string]guid.GUID
	hits   int
	misses int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{ids: make(map[string]guid.GUID)}
}

// Of is Of with memoization of parameterized identifiers.
func (c *Cache) Of(t Type) (guid.GUID, error) {
	p, ok := t.(Parameterized)
	if !ok {
		return Of(t)
	}
	sig := p.Signature()

	c.mu.RLock()
	id, ok := c.ids[sig]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return id, nil
	}

	id = FromSignature(sig)
	c.mu.Lock()
	c.ids[sig] = id
	c.misses++
	c.mu.Unlock()
	Logger().Debug("derived interface identifier",
		zap.String("type", p.String()),
		zap.String("signature", sig),
		zap.Stringer("iid", id))
	return id, nil
}

// Len returns the number of memoized identifiers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
