package iid

import (
	"strings"
	"unicode"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// Scope resolves names in type expressions.
type Scope struct {
	generics map[string]Generic
	types    map[string]Type
}

var primitiveAliases = map[string]Type{
	"int8": Int8, "uint8": UInt8, "byte": UInt8,
	"int16": Int16, "uint16": UInt16,
	"int32": Int32, "uint32": UInt32,
	"int64": Int64, "uint64": UInt64,
	"single": Float32, "float32": Float32, "double": Float64, "float64": Float64,
	"boolean": Boolean, "bool": Boolean,
	"char16": Char16, "guid": Guid,
	"string": String, "hstring": String,
	"object": Object, "iinspectable": Object,
}

// NewScope returns a scope that knows the primitives and the well-known
// generics, by short and by full name.
func NewScope() *Scope {
	s := &Scope{
		generics: make(map[string]Generic),
		types:    make(map[string]Type),
	}
	for name, t := range primitiveAliases {
		s.types[name] = t
	}
	for _, p := range []Primitive{Int8, UInt8, Int16, UInt16, Int32, UInt32, Int64, UInt64, Float32, Float64, Boolean, Char16, Guid} {
		s.types[string(p)] = p
	}
	for _, g := range Generics() {
		s.AddGeneric(g)
	}
	return s
}

// AddGeneric makes g available by its full and short name.
func (s *Scope) AddGeneric(g Generic) {
	s.generics[strings.ToLower(g.Name)] = g
	s.generics[strings.ToLower(shortName(g.Name))] = g
}

// Define binds name to t, for runtime classes, structs, enums and
// non-parameterized interfaces.
func (s *Scope) Define(name string, t Type) {
	s.types[strings.ToLower(name)] = t
	s.types[strings.ToLower(shortName(name))] = t
}

var defaultScope = NewScope()

// Parse reads a type expression such as IMap<String, IVector<Int32>> using
// the default scope.
func Parse(expr string) (Type, error) {
	return defaultScope.Parse(expr)
}

// Parse reads a type expression. A braced identifier stands for a
// non-parameterized interface.
func (s *Scope) Parse(expr string) (Type, error) {
	p := &parser{scope: s, src: expr}
	t, err := p.typ()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos != len(p.src) {
		return nil, p.fail("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

type parser struct {
	scope *Scope
	src   string
	pos   int
}

func (p *parser) fail(format string, args ...any) error {
	return errors.New(errors.PhaseSignature, errors.KindInvalidInput).
		Name(p.src).
		Detail("at %d: "+format, append([]any{p.pos}, args...)...).
		Build()
}

func (p *parser) space() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.space()
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) typ() (Type, error) {
	if p.peek() == '{' {
		end := strings.IndexByte(p.src[p.pos:], '}')
		if end < 0 {
			return nil, p.fail("unterminated identifier")
		}
		id, err := guid.Parse(p.src[p.pos : p.pos+end+1])
		if err != nil {
			return nil, p.fail("bad identifier: %v", err)
		}
		p.pos += end + 1
		return Interface{IID: id}, nil
	}

	name := p.name()
	if name == "" {
		return nil, p.fail("expected a type name")
	}
	key := strings.ToLower(name)
	if p.peek() != '<' {
		if t, ok := p.scope.types[key]; ok {
			return t, nil
		}
		if g, ok := p.scope.generics[key]; ok {
			return nil, p.fail("%s needs %d type arguments", g.Name, g.Arity)
		}
		return nil, errors.NotFound(errors.PhaseSignature, "type", name)
	}

	g, ok := p.scope.generics[key]
	if !ok {
		return nil, errors.NotFound(errors.PhaseSignature, "generic type", name)
	}
	p.pos++
	var args []Type
	for {
		arg, err := p.typ()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		switch p.peek() {
		case ',':
			p.pos++
			continue
		case '>':
			p.pos++
			t, err := g.Of(args...)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return nil, p.fail("expected ',' or '>'")
	}
}

func (p *parser) name() string {
	p.space()
	start := p.pos
	for p.pos < len(p.src) {
		c := rune(p.src[p.pos])
		if c != '.' && c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}
