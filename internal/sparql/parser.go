package sparql

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
)

// updateKeywords start SPARQL Update operations, which are not accepted
var updateKeywords = []string{"INSERT", "DELETE", "LOAD", "CLEAR", "CREATE", "DROP", "COPY", "MOVE", "ADD", "WITH"}

type parser struct {
	src      string
	toks     []token
	pos      int
	base     string
	prefixes map[string]string

	anon     int
	template bool
	seen     map[string]bool
	visible  []string
}

// Parse parses a query. Failures are *QueryError.
func Parse(query string) (*Query, error) {
	if strings.TrimSpace(query) == "" {
		return nil, syntaxError(0, "empty query")
	}

	toks, err := lex(query)
	if err != nil {
		return nil, err
	}

	p := &parser{
		src:      query,
		toks:     toks,
		prefixes: make(map[string]string),
		seen:     make(map[string]bool),
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) describe(t token) string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

func (p *parser) expectPunct(s string) error {
	t := p.advance()
	if !t.is(s) {
		return syntaxError(t.pos, "expected %q, found %s", s, p.describe(t))
	}
	return nil
}

func (p *parser) acceptWord(w string) bool {
	if p.peek().isWord(w) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) acceptPunct(s string) bool {
	if p.peek().is(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) noteVar(name string) {
	if strings.HasPrefix(name, blankVarPrefix) || p.seen[name] {
		return
	}
	p.seen[name] = true
	p.visible = append(p.visible, name)
}

func (p *parser) parseQuery() (*Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}

	t := p.peek()
	for _, kw := range updateKeywords {
		if t.isWord(kw) {
			return nil, unsupportedError(t.pos, "update operation %s is not supported, the store is read-only", strings.ToUpper(t.text))
		}
	}

	q := &Query{Limit: -1}
	switch {
	case t.isWord("SELECT"):
		p.advance()
		if err := p.parseSelectClause(q); err != nil {
			return nil, err
		}
	case t.isWord("ASK"):
		p.advance()
		q.Form = FormAsk
	case t.isWord("CONSTRUCT"):
		p.advance()
		q.Form = FormConstruct
		if p.peek().is("{") {
			tpl, err := p.parseTemplate()
			if err != nil {
				return nil, err
			}
			q.Construct = tpl
		}
	case t.isWord("DESCRIBE"):
		p.advance()
		if err := p.parseDescribeClause(q); err != nil {
			return nil, err
		}
	default:
		return nil, syntaxError(t.pos, "expected SELECT, ASK, CONSTRUCT or DESCRIBE, found %s", p.describe(t))
	}

	if err := p.parseDatasetClauses(q); err != nil {
		return nil, err
	}

	hasWhere := p.acceptWord("WHERE")
	if hasWhere || p.peek().is("{") {
		where, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		q.Where = where
	} else if q.Form != FormDescribe {
		return nil, syntaxError(p.peek().pos, "expected WHERE clause, found %s", p.describe(p.peek()))
	}

	if q.Form == FormConstruct && q.Construct == nil {
		tpl, err := shortConstructTemplate(q.Where)
		if err != nil {
			return nil, err
		}
		q.Construct = tpl
	}

	if err := p.parseSolutionModifiers(q); err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		if t.isWord("VALUES") {
			return nil, unsupportedError(t.pos, "VALUES is not supported")
		}
		return nil, syntaxError(t.pos, "unexpected %s after query", p.describe(t))
	}

	q.visible = p.visible
	return q, nil
}

func (p *parser) parsePrologue() error {
	for {
		t := p.peek()
		switch {
		case t.isWord("BASE"):
			p.advance()
			iri := p.advance()
			if iri.kind != tokIRI {
				return syntaxError(iri.pos, "expected IRI after BASE, found %s", p.describe(iri))
			}
			p.base = p.resolve(iri.text)
		case t.isWord("PREFIX"):
			p.advance()
			name := p.advance()
			if name.kind != tokPName || !strings.HasSuffix(name.text, ":") {
				return syntaxError(name.pos, "expected prefix name after PREFIX, found %s", p.describe(name))
			}
			iri := p.advance()
			if iri.kind != tokIRI {
				return syntaxError(iri.pos, "expected IRI after prefix %s, found %s", name.text, p.describe(iri))
			}
			p.prefixes[strings.TrimSuffix(name.text, ":")] = p.resolve(iri.text)
		default:
			return nil
		}
	}
}

func (p *parser) parseSelectClause(q *Query) error {
	q.Form = FormSelect
	if p.acceptWord("DISTINCT") {
		q.Distinct = true
	} else if p.acceptWord("REDUCED") {
		q.Distinct = true
	}

	if p.acceptPunct("*") {
		return nil
	}

	q.Projection = []string{}
	for {
		t := p.peek()
		switch {
		case t.kind == tokVar:
			p.advance()
			q.Projection = append(q.Projection, t.text)
		case t.is("("):
			return unsupportedError(t.pos, "projection expressions are not supported")
		default:
			if len(q.Projection) == 0 {
				return syntaxError(t.pos, "expected '*' or variables after SELECT, found %s", p.describe(t))
			}
			return nil
		}
	}
}

func (p *parser) parseDescribeClause(q *Query) error {
	q.Form = FormDescribe
	if p.acceptPunct("*") {
		return nil
	}

	q.Describe = []Node{}
	for {
		t := p.peek()
		switch t.kind {
		case tokVar:
			p.advance()
			q.Describe = append(q.Describe, Node{Var: t.text})
		case tokIRI, tokPName:
			iri, err := p.parseIRI()
			if err != nil {
				return err
			}
			q.Describe = append(q.Describe, Node{Term: rdfstore.NewIRI(iri)})
		default:
			if len(q.Describe) == 0 {
				return syntaxError(t.pos, "expected '*', variables or IRIs after DESCRIBE, found %s", p.describe(t))
			}
			return nil
		}
	}
}

func (p *parser) parseDatasetClauses(q *Query) error {
	for p.acceptWord("FROM") {
		named := p.acceptWord("NAMED")
		iri, err := p.parseIRI()
		if err != nil {
			return err
		}
		if named {
			q.FromNamed = append(q.FromNamed, rdfstore.NewIRI(iri))
		} else {
			q.From = append(q.From, rdfstore.NewIRI(iri))
		}
	}
	return nil
}

func (p *parser) parseSolutionModifiers(q *Query) error {
	if t := p.peek(); t.isWord("GROUP") || t.isWord("HAVING") {
		return unsupportedError(t.pos, "aggregation is not supported")
	}

	if p.acceptWord("ORDER") {
		if t := p.advance(); !t.isWord("BY") {
			return syntaxError(t.pos, "expected BY after ORDER, found %s", p.describe(t))
		}
		for {
			cond, ok, err := p.parseOrderCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			q.OrderBy = append(q.OrderBy, cond)
		}
		if len(q.OrderBy) == 0 {
			return syntaxError(p.peek().pos, "expected order condition, found %s", p.describe(p.peek()))
		}
	}

	for {
		switch t := p.peek(); {
		case t.isWord("LIMIT"):
			p.advance()
			n, err := p.parseNonNegativeInt()
			if err != nil {
				return err
			}
			q.Limit = n
		case t.isWord("OFFSET"):
			p.advance()
			n, err := p.parseNonNegativeInt()
			if err != nil {
				return err
			}
			q.Offset = n
		default:
			return nil
		}
	}
}

func (p *parser) parseOrderCondition() (OrderCondition, bool, error) {
	t := p.peek()
	switch {
	case t.kind == tokVar:
		p.advance()
		return OrderCondition{Var: t.text}, true, nil
	case t.isWord("ASC") || t.isWord("DESC"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return OrderCondition{}, false, err
		}
		v := p.advance()
		if v.kind != tokVar {
			return OrderCondition{}, false, unsupportedError(v.pos, "only variables can be used as order keys")
		}
		if err := p.expectPunct(")"); err != nil {
			return OrderCondition{}, false, err
		}
		return OrderCondition{Var: v.text, Descending: t.isWord("DESC")}, true, nil
	case t.is("("):
		return OrderCondition{}, false, unsupportedError(t.pos, "only variables can be used as order keys")
	}
	return OrderCondition{}, false, nil
}

func (p *parser) parseNonNegativeInt() (int, error) {
	t := p.advance()
	if t.kind != tokInteger {
		return 0, syntaxError(t.pos, "expected integer, found %s", p.describe(t))
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, syntaxError(t.pos, "invalid integer %q", t.text)
	}
	return n, nil
}

// parseTemplate parses a CONSTRUCT template; blank nodes stay terms
func (p *parser) parseTemplate() ([]TriplePattern, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	p.template = true
	defer func() { p.template = false }()

	var triples []TriplePattern
	for !p.peek().is("}") {
		if p.acceptPunct(".") {
			continue
		}
		block, err := p.parseTriplesSameSubject()
		if err != nil {
			return nil, err
		}
		triples = append(triples, block...)
	}
	p.advance()
	return triples, nil
}

// shortConstructTemplate implements CONSTRUCT WHERE { basic pattern }
func shortConstructTemplate(where *GroupPattern) ([]TriplePattern, error) {
	var triples []TriplePattern
	for _, el := range where.Elements {
		bp, ok := el.(*BasicPattern)
		if !ok {
			return nil, syntaxError(-1, "CONSTRUCT WHERE only allows triple patterns")
		}
		triples = append(triples, bp.Triples...)
	}
	if len(where.Filters) > 0 {
		return nil, syntaxError(-1, "CONSTRUCT WHERE only allows triple patterns")
	}
	return triples, nil
}

// parseGroup parses '{' ... '}'
func (p *parser) parseGroup() (*GroupPattern, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	group := &GroupPattern{}
	var current *BasicPattern

	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return nil, syntaxError(t.pos, "unterminated group, expected '}'")
		case t.is("}"):
			p.advance()
			return group, nil
		case t.is("."):
			p.advance()
		case t.is("{"):
			current = nil
			el, err := p.parseGroupOrUnion()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, el)
		case t.isWord("OPTIONAL"):
			current = nil
			p.advance()
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, &OptionalPattern{Group: sub})
		case t.isWord("GRAPH"):
			current = nil
			p.advance()
			name, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, &GraphPattern{Name: name, Group: sub})
		case t.isWord("FILTER"):
			p.advance()
			f, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			group.Filters = append(group.Filters, f)
		case t.isWord("MINUS") || t.isWord("BIND") || t.isWord("VALUES") || t.isWord("SERVICE") || t.isWord("SELECT"):
			return nil, unsupportedError(t.pos, "%s is not supported", strings.ToUpper(t.text))
		default:
			triples, err := p.parseTriplesSameSubject()
			if err != nil {
				return nil, err
			}
			if current == nil {
				current = &BasicPattern{}
				group.Elements = append(group.Elements, current)
			}
			current.Triples = append(current.Triples, triples...)
		}
	}
}

func (p *parser) parseGroupOrUnion() (Element, error) {
	first, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	if !p.peek().isWord("UNION") {
		return first, nil
	}

	union := &UnionPattern{Alternatives: []*GroupPattern{first}}
	for p.acceptWord("UNION") {
		alt, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		union.Alternatives = append(union.Alternatives, alt)
	}
	return union, nil
}

// parseTriplesSameSubject parses a subject with its property list
func (p *parser) parseTriplesSameSubject() ([]TriplePattern, error) {
	var triples []TriplePattern

	var subject Node
	if p.peek().is("[") {
		node, extra, err := p.parseBlankNodePropertyList()
		if err != nil {
			return nil, err
		}
		subject = node
		triples = append(triples, extra...)
		// "[ :p :o ] ." is a complete statement on its own
		if t := p.peek(); t.is(".") || t.is("}") {
			return triples, nil
		}
	} else {
		node, err := p.parseVarOrTerm()
		if err != nil {
			return nil, err
		}
		subject = node
	}

	more, err := p.parsePropertyList(subject)
	if err != nil {
		return nil, err
	}
	return append(triples, more...), nil
}

// parsePropertyList parses "verb objectList (';' verb objectList)*"
func (p *parser) parsePropertyList(subject Node) ([]TriplePattern, error) {
	var triples []TriplePattern
	for {
		verb, err := p.parseVerb()
		if err != nil {
			return nil, err
		}
		for {
			object, extra, err := p.parseObject()
			if err != nil {
				return nil, err
			}
			triples = append(triples, extra...)
			triples = append(triples, TriplePattern{Subject: subject, Predicate: verb, Object: object})
			if !p.acceptPunct(",") {
				break
			}
		}

		if !p.acceptPunct(";") {
			return triples, nil
		}
		for p.acceptPunct(";") {
		}
		if t := p.peek(); t.is(".") || t.is("}") || t.is("]") {
			return triples, nil
		}
	}
}

func (p *parser) parseVerb() (Node, error) {
	t := p.peek()
	if t.kind == tokWord && t.text == "a" {
		p.advance()
		return Node{Term: rdfstore.NewIRI(rdfstore.RDFType)}, nil
	}
	if t.kind == tokVar {
		p.advance()
		p.noteVar(t.text)
		return Node{Var: t.text}, nil
	}
	if t.kind == tokIRI || t.kind == tokPName {
		iri, err := p.parseIRI()
		if err != nil {
			return Node{}, err
		}
		return Node{Term: rdfstore.NewIRI(iri)}, nil
	}
	return Node{}, syntaxError(t.pos, "expected predicate, found %s", p.describe(t))
}

func (p *parser) parseObject() (Node, []TriplePattern, error) {
	if p.peek().is("[") {
		return p.parseBlankNodePropertyList()
	}
	node, err := p.parseVarOrTerm()
	return node, nil, err
}

// parseBlankNodePropertyList parses "[]" or "[ verb objectList ... ]"
func (p *parser) parseBlankNodePropertyList() (Node, []TriplePattern, error) {
	if err := p.expectPunct("["); err != nil {
		return Node{}, nil, err
	}
	node := p.freshBlank()
	if p.acceptPunct("]") {
		return node, nil, nil
	}

	triples, err := p.parsePropertyList(node)
	if err != nil {
		return Node{}, nil, err
	}
	if err := p.expectPunct("]"); err != nil {
		return Node{}, nil, err
	}
	return node, triples, nil
}

func (p *parser) freshBlank() Node {
	p.anon++
	label := fmt.Sprintf("anon%d", p.anon)
	if p.template {
		return Node{Term: rdfstore.NewBlank(label)}
	}
	return Node{Var: blankVarPrefix + label}
}

func (p *parser) parseVarOrIRI() (Node, error) {
	t := p.peek()
	if t.kind == tokVar {
		p.advance()
		p.noteVar(t.text)
		return Node{Var: t.text}, nil
	}
	iri, err := p.parseIRI()
	if err != nil {
		return Node{}, err
	}
	return Node{Term: rdfstore.NewIRI(iri)}, nil
}

// parseVarOrTerm parses a variable, IRI, literal or blank node
func (p *parser) parseVarOrTerm() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokVar:
		p.advance()
		p.noteVar(t.text)
		return Node{Var: t.text}, nil
	case tokBlank:
		p.advance()
		if p.template {
			return Node{Term: rdfstore.NewBlank(t.text)}, nil
		}
		return Node{Var: blankVarPrefix + t.text}, nil
	case tokIRI, tokPName:
		iri, err := p.parseIRI()
		if err != nil {
			return Node{}, err
		}
		return Node{Term: rdfstore.NewIRI(iri)}, nil
	case tokPunct:
		if t.is("(") {
			return Node{}, unsupportedError(t.pos, "RDF collections are not supported")
		}
		if t.is("-") || t.is("+") {
			next := p.peekAt(1)
			if next.kind == tokInteger || next.kind == tokDecimal || next.kind == tokDouble {
				p.advance()
				lit, err := p.parseLiteral()
				if err != nil {
					return Node{}, err
				}
				if t.is("-") {
					lit.Value = "-" + lit.Value
				}
				return Node{Term: lit}, nil
			}
		}
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return Node{}, err
	}
	return Node{Term: lit}, nil
}

// parseLiteral parses a string, numeric or boolean literal
func (p *parser) parseLiteral() (rdfstore.Term, error) {
	t := p.advance()
	switch t.kind {
	case tokString:
		switch next := p.peek(); {
		case next.kind == tokLangTag:
			p.advance()
			return rdfstore.NewLangLiteral(t.text, next.text), nil
		case next.is("^^"):
			p.advance()
			dt, err := p.parseIRI()
			if err != nil {
				return rdfstore.Term{}, err
			}
			return rdfstore.NewTypedLiteral(t.text, dt), nil
		}
		return rdfstore.NewLiteral(t.text), nil
	case tokInteger:
		return rdfstore.NewTypedLiteral(t.text, rdfstore.XSDInteger), nil
	case tokDecimal:
		return rdfstore.NewTypedLiteral(t.text, rdfstore.XSDDecimal), nil
	case tokDouble:
		return rdfstore.NewTypedLiteral(t.text, rdfstore.XSDDouble), nil
	case tokWord:
		if t.isWord("true") || t.isWord("false") {
			return rdfstore.NewTypedLiteral(strings.ToLower(t.text), rdfstore.XSDBoolean), nil
		}
	}
	return rdfstore.Term{}, syntaxError(t.pos, "expected term, found %s", p.describe(t))
}

// parseIRI parses an IRI reference or a prefixed name into an absolute IRI
func (p *parser) parseIRI() (string, error) {
	t := p.advance()
	switch t.kind {
	case tokIRI:
		return p.resolve(t.text), nil
	case tokPName:
		i := strings.Index(t.text, ":")
		prefix, local := t.text[:i], t.text[i+1:]
		ns, ok := p.prefixes[prefix]
		if !ok {
			return "", syntaxError(t.pos, "undefined prefix %q", prefix)
		}
		return ns + unescapeLocal(local), nil
	}
	return "", syntaxError(t.pos, "expected IRI, found %s", p.describe(t))
}

// resolve resolves a relative IRI against the BASE
func (p *parser) resolve(iri string) string {
	if p.base == "" {
		return iri
	}
	ref, err := url.Parse(iri)
	if err != nil || ref.IsAbs() {
		return iri
	}
	base, err := url.Parse(p.base)
	if err != nil {
		return iri
	}
	return base.ResolveReference(ref).String()
}

func unescapeLocal(local string) string {
	if !strings.Contains(local, "%") {
		return local
	}
	if s, err := url.PathUnescape(local); err == nil {
		return s
	}
	return local
}
