package rdfstore

import (
	"strconv"
	"strings"
)

// Well-known datatype IRIs
const (
	XSDString     = "http://www.w3.org/2001/XMLSchema#string"
	XSDBoolean    = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDInteger    = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal    = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble     = "http://www.w3.org/2001/XMLSchema#double"
	XSDFloat      = "http://www.w3.org/2001/XMLSchema#float"
	XSDInt        = "http://www.w3.org/2001/XMLSchema#int"
	XSDLong       = "http://www.w3.org/2001/XMLSchema#long"
	XSDDateTime   = "http://www.w3.org/2001/XMLSchema#dateTime"
	RDFLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
	RDFType       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// TermKind distinguishes IRIs, blank nodes and literals
type TermKind uint8

const (
	// KindIRI is an IRI reference
	KindIRI TermKind = iota + 1
	// KindBlank is a blank node
	KindBlank
	// KindLiteral is a literal value
	KindLiteral
)

// Term is an RDF term. Terms are comparable and used directly as index keys.
// The zero Term is not a valid subject, predicate or object; as a graph it
// denotes the default graph.
type Term struct {
	Kind     TermKind
	Value    string
	Lang     string
	Datatype string
}

// DefaultGraph names the default graph
var DefaultGraph = Term{}

// NewIRI returns an IRI term
func NewIRI(iri string) Term {
	return Term{Kind: KindIRI, Value: iri}
}

// NewBlank returns a blank node term
func NewBlank(id string) Term {
	return Term{Kind: KindBlank, Value: id}
}

// NewLiteral returns a simple literal
func NewLiteral(value string) Term {
	return Term{Kind: KindLiteral, Value: value}
}

// NewLangLiteral returns a language-tagged literal
func NewLangLiteral(value, lang string) Term {
	return Term{Kind: KindLiteral, Value: value, Lang: strings.ToLower(lang)}
}

// NewTypedLiteral returns a typed literal. xsd:string collapses to a simple literal.
func NewTypedLiteral(value, datatype string) Term {
	if datatype == XSDString || datatype == RDFLangString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: value, Datatype: datatype}
}

// IsZero reports whether t is the zero term
func (t Term) IsZero() bool {
	return t.Kind == 0
}

// IsIRI reports whether t is an IRI
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsBlank reports whether t is a blank node
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// IsLiteral reports whether t is a literal
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// EffectiveDatatype returns the datatype IRI of a literal, including the
// implicit xsd:string and rdf:langString
func (t Term) EffectiveDatatype() string {
	switch {
	case t.Kind != KindLiteral:
		return ""
	case t.Lang != "":
		return RDFLangString
	case t.Datatype == "":
		return XSDString
	default:
		return t.Datatype
	}
}

// Numeric returns the value of a numeric literal
func (t Term) Numeric() (float64, bool) {
	if t.Kind != KindLiteral {
		return 0, false
	}
	switch t.Datatype {
	case XSDInteger, XSDDecimal, XSDDouble, XSDFloat, XSDInt, XSDLong:
		f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
		return f, err == nil
	}
	return 0, false
}

// String returns the N-Triples form of t
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + escapeIRI(t.Value) + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := `"` + escapeLiteral(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + escapeIRI(t.Datatype) + ">"
		}
		return s
	default:
		return ""
	}
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

var iriEscaper = strings.NewReplacer(
	">", `\u003E`,
	"<", `\u003C`,
	" ", `\u0020`,
	`"`, `\u0022`,
)

func escapeIRI(s string) string {
	return iriEscaper.Replace(s)
}

// Quad is a statement in a graph
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

// Triple is a statement without its graph
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// String returns the N-Triples line of t, without the trailing newline
func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}
