package rdfstore

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/knakk/rdf"
)

// Format is a supported RDF serialization, identified by its media type
type Format string

const (
	FormatTurtle   Format = "text/turtle"
	FormatNTriples Format = "application/n-triples"
	FormatNQuads   Format = "application/n-quads"
	FormatRDFXML   Format = "application/rdf+xml"
)

var formatAliases = map[string]Format{
	"text/turtle":           FormatTurtle,
	"application/x-turtle":  FormatTurtle,
	"turtle":                FormatTurtle,
	"ttl":                   FormatTurtle,
	"application/n-triples": FormatNTriples,
	"text/plain":            FormatNTriples,
	"n-triples":             FormatNTriples,
	"ntriples":              FormatNTriples,
	"nt":                    FormatNTriples,
	"application/n-quads":   FormatNQuads,
	"text/x-nquads":         FormatNQuads,
	"n-quads":               FormatNQuads,
	"nquads":                FormatNQuads,
	"nq":                    FormatNQuads,
	"application/rdf+xml":   FormatRDFXML,
	"application/xml":       FormatRDFXML,
	"rdf/xml":               FormatRDFXML,
	"rdfxml":                FormatRDFXML,
	"rdf":                   FormatRDFXML,
	"owl":                   FormatRDFXML,
	"xml":                   FormatRDFXML,
}

// ParseFormat resolves a media type (parameters allowed) or a short name
func ParseFormat(id string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if mediaType, _, err := mime.ParseMediaType(key); err == nil {
		key = mediaType
	}
	if f, ok := formatAliases[key]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, id)
}

// FormatFromPath guesses the format from the file extension of a path or URL
func FormatFromPath(locator string) (Format, bool) {
	if i := strings.IndexAny(locator, "?#"); i >= 0 {
		locator = locator[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(locator)), ".")
	if ext == "" {
		return "", false
	}
	f, ok := formatAliases[ext]
	return f, ok
}

// IsQuadFormat reports whether documents in f may carry their own graph names
func (f Format) IsQuadFormat() bool {
	return f == FormatNQuads
}

func (f Format) decoderFormat() rdf.Format {
	switch f {
	case FormatNTriples:
		return rdf.NTriples
	case FormatNQuads:
		return rdf.NQuads
	case FormatRDFXML:
		return rdf.RDFXML
	default:
		return rdf.Turtle
	}
}

// LoadOptions describes how a document is placed into the store
type LoadOptions struct {
	Format Format
	// BaseIRI resolves relative IRIs in Turtle documents
	BaseIRI string
	// Graph receives triples; the zero Term is the default graph
	Graph Term
}

// Parse decodes a whole document into quads. Failures are *ParseError.
func Parse(content string, opts LoadOptions) ([]Quad, error) {
	if opts.Format == "" {
		opts.Format = FormatTurtle
	}

	conv := converter{}
	if opts.BaseIRI != "" {
		if opts.Format == FormatTurtle {
			content = "@base <" + opts.BaseIRI + "> .\n" + content
		} else {
			base, err := url.Parse(opts.BaseIRI)
			if err != nil || !base.IsAbs() {
				return nil, &ParseError{Format: opts.Format, Err: fmt.Errorf("invalid base IRI %q", opts.BaseIRI)}
			}
			conv.base = base
		}
	}

	if opts.Format.IsQuadFormat() {
		return conv.parseQuads(content, opts)
	}
	return conv.parseTriples(content, opts)
}

// converter maps decoded terms onto store terms, resolving relative IRIs
// against base when set
type converter struct {
	base *url.URL
}

func (c converter) parseTriples(content string, opts LoadOptions) ([]Quad, error) {
	dec := rdf.NewTripleDecoder(strings.NewReader(content), opts.Format.decoderFormat())

	var quads []Quad
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Format: opts.Format, Statement: len(quads) + 1, Err: err}
		}

		q, err := c.convertTriple(tr, opts.Graph)
		if err != nil {
			return nil, &ParseError{Format: opts.Format, Statement: len(quads) + 1, Err: err}
		}
		quads = append(quads, q)
	}
	return quads, nil
}

func (c converter) parseQuads(content string, opts LoadOptions) ([]Quad, error) {
	dec := rdf.NewQuadDecoder(strings.NewReader(content), opts.Format.decoderFormat())

	var quads []Quad
	for {
		rq, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Format: opts.Format, Statement: len(quads) + 1, Err: err}
		}

		graphName := opts.Graph
		if rq.Ctx != nil {
			ctxTerm, err := c.convertTerm(rq.Ctx)
			if err != nil {
				return nil, &ParseError{Format: opts.Format, Statement: len(quads) + 1, Err: err}
			}
			if ctxTerm.Value != "" {
				graphName = ctxTerm
			}
		}

		q, err := c.convertTriple(rq.Triple, graphName)
		if err != nil {
			return nil, &ParseError{Format: opts.Format, Statement: len(quads) + 1, Err: err}
		}
		quads = append(quads, q)
	}
	return quads, nil
}

func (c converter) convertTriple(tr rdf.Triple, graphName Term) (Quad, error) {
	s, err := c.convertTerm(tr.Subj)
	if err != nil {
		return Quad{}, err
	}
	p, err := c.convertTerm(tr.Pred)
	if err != nil {
		return Quad{}, err
	}
	o, err := c.convertTerm(tr.Obj)
	if err != nil {
		return Quad{}, err
	}
	return Quad{Subject: s, Predicate: p, Object: o, Graph: graphName}, nil
}

// resolve returns iri made absolute against the base IRI
func (c converter) resolve(iri string) string {
	if c.base == nil {
		return iri
	}
	ref, err := url.Parse(iri)
	if err != nil || ref.IsAbs() {
		return iri
	}
	return c.base.ResolveReference(ref).String()
}

// convertTerm maps a decoded term onto the store's comparable Term
func (c converter) convertTerm(t rdf.Term) (Term, error) {
	switch v := t.(type) {
	case rdf.IRI:
		return NewIRI(c.resolve(v.String())), nil
	case rdf.Blank:
		return NewBlank(strings.TrimPrefix(v.String(), "_:")), nil
	case rdf.Literal:
		if lang := v.Lang(); lang != "" {
			return NewLangLiteral(v.String(), lang), nil
		}
		return NewTypedLiteral(v.String(), v.DataType.String()), nil
	default:
		return Term{}, fmt.Errorf("unsupported term %T", t)
	}
}

// Load parses content and inserts every statement. Nothing is inserted when
// parsing fails. It returns the number of statements added.
func (s *Store) Load(content string, opts LoadOptions) (int, error) {
	quads, err := Parse(content, opts)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, q := range quads {
		if s.Add(q) {
			added++
		}
	}
	return added, nil
}
