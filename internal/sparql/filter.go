package sparql

import (
	"strconv"
	"strings"
	"time"

	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
)

// Variables of the CEL environment a FILTER is evaluated in. Each maps a
// query variable name to one facet of its bound term.
const (
	celValues    = "v" // comparable value: float64, bool, string, timestamp or tagged map
	celLexical   = "s" // lexical form (IRI text for IRIs)
	celKinds     = "k" // "uri", "bnode" or "literal"
	celLangs     = "l" // language tag of literals ("" when none)
	celDatatypes = "d" // datatype IRI of literals
)

// filterVariables lists the CEL variables declared for FILTER evaluation
var filterVariables = []string{celValues, celLexical, celKinds, celLangs, celDatatypes}

// celExpr is a translated sub-expression
type celExpr struct {
	code string
	// variable is set when the expression is a bare query variable
	variable string
	// iri is set when the expression is a constant IRI
	iri string
	// str is set when the expression always yields a string
	str bool
	// lexical is the CEL string of a constant literal's lexical form
	lexical string
}

func quoteCEL(s string) string {
	return strconv.Quote(s)
}

func indexCEL(m, name string) string {
	return m + "[" + quoteCEL(name) + "]"
}

// iriValue is the comparable value of an IRI: its N-Triples form, so it can
// never equal a plain string literal
func iriValue(iri string) string {
	return "<" + iri + ">"
}

// literalCEL renders a literal as a CEL constant with the same shape
// filterBindings gives bound literals
func literalCEL(t rdfstore.Term) string {
	if f, ok := t.Numeric(); ok {
		return floatCEL(f)
	}
	switch {
	case t.Datatype == rdfstore.XSDBoolean:
		if t.Value == "true" || t.Value == "1" {
			return "true"
		}
		return "false"
	case t.Lang != "":
		return `{"value": ` + quoteCEL(t.Value) + `, "lang": ` + quoteCEL(strings.ToLower(t.Lang)) + `}`
	case t.Datatype != "":
		if ts, ok := dateTimeValue(t); ok {
			return "timestamp(" + quoteCEL(ts.UTC().Format(time.RFC3339Nano)) + ")"
		}
		return `{"value": ` + quoteCEL(t.Value) + `, "datatype": ` + quoteCEL(t.Datatype) + `}`
	}
	return quoteCEL(t.Value)
}

// taggedValue is the comparable value of a literal with a language tag or a
// datatype other than numeric, boolean and string ones. Two such literals
// are equal only when value, language and datatype all match.
func taggedValue(t rdfstore.Term) interface{} {
	if t.Lang != "" {
		return map[string]interface{}{"value": t.Value, "lang": strings.ToLower(t.Lang)}
	}
	if ts, ok := dateTimeValue(t); ok {
		return ts
	}
	return map[string]interface{}{"value": t.Value, "datatype": t.Datatype}
}

func dateTimeValue(t rdfstore.Term) (time.Time, bool) {
	if t.Datatype != rdfstore.XSDDateTime {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t.Value))
	return ts, err == nil
}

func floatCEL(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// stringArg renders an argument used in a string function
func stringArg(e celExpr) string {
	switch {
	case e.variable != "":
		return indexCEL(celLexical, e.variable)
	case e.iri != "":
		return quoteCEL(e.iri)
	case e.str:
		return e.code
	case e.lexical != "":
		return e.lexical
	default:
		return "string(" + e.code + ")"
	}
}

// parseFilter parses the constraint following FILTER
func (p *parser) parseFilter() (*Filter, error) {
	start := p.peek()

	var expr celExpr
	var err error
	switch {
	case start.is("("):
		p.advance()
		if expr, err = p.parseExpression(); err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	case start.kind == tokWord:
		if expr, err = p.parseFunctionCall(); err != nil {
			return nil, err
		}
	default:
		return nil, syntaxError(start.pos, "expected constraint after FILTER, found %s", p.describe(start))
	}

	end := p.peek().pos
	return &Filter{
		Source:     strings.TrimSpace(p.src[start.pos:end]),
		Expression: expr.code,
	}, nil
}

func (p *parser) parseExpression() (celExpr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (celExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return celExpr{}, err
	}
	for p.acceptPunct("||") {
		right, err := p.parseAnd()
		if err != nil {
			return celExpr{}, err
		}
		left = celExpr{code: "(" + left.code + " || " + right.code + ")"}
	}
	return left, nil
}

func (p *parser) parseAnd() (celExpr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return celExpr{}, err
	}
	for p.acceptPunct("&&") {
		right, err := p.parseRelational()
		if err != nil {
			return celExpr{}, err
		}
		left = celExpr{code: "(" + left.code + " && " + right.code + ")"}
	}
	return left, nil
}

var relationalOps = map[string]string{
	"=":  "==",
	"!=": "!=",
	"<":  "<",
	">":  ">",
	"<=": "<=",
	">=": ">=",
}

func (p *parser) parseRelational() (celExpr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return celExpr{}, err
	}

	t := p.peek()
	if t.kind == tokPunct {
		if op, ok := relationalOps[t.text]; ok {
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return celExpr{}, err
			}
			return celExpr{code: "(" + left.code + " " + op + " " + right.code + ")"}, nil
		}
	}

	negate := false
	if t.isWord("NOT") && p.peekAt(1).isWord("IN") {
		p.advance()
		negate = true
	}
	if p.acceptWord("IN") {
		list, err := p.parseArgs()
		if err != nil {
			return celExpr{}, err
		}
		codes := make([]string, len(list))
		for i, e := range list {
			codes[i] = e.code
		}
		code := "(" + left.code + " in [" + strings.Join(codes, ", ") + "])"
		if negate {
			code = "!" + code
		}
		return celExpr{code: code}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (celExpr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return celExpr{}, err
	}
	for {
		t := p.peek()
		if !t.is("+") && !t.is("-") {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return celExpr{}, err
		}
		left = celExpr{code: "(" + left.code + " " + t.text + " " + right.code + ")"}
	}
}

func (p *parser) parseMultiplicative() (celExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return celExpr{}, err
	}
	for {
		t := p.peek()
		if !t.is("*") && !t.is("/") {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return celExpr{}, err
		}
		left = celExpr{code: "(" + left.code + " " + t.text + " " + right.code + ")"}
	}
}

func (p *parser) parseUnary() (celExpr, error) {
	switch t := p.peek(); {
	case t.is("!"):
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "!" + inner.code}, nil
	case t.is("-"):
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "-" + inner.code}, nil
	case t.is("+"):
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (celExpr, error) {
	t := p.peek()
	switch t.kind {
	case tokPunct:
		if t.is("(") {
			p.advance()
			inner, err := p.parseExpression()
			if err != nil {
				return celExpr{}, err
			}
			if err := p.expectPunct(")"); err != nil {
				return celExpr{}, err
			}
			return celExpr{code: "(" + inner.code + ")", str: inner.str}, nil
		}
	case tokVar:
		p.advance()
		return celExpr{code: indexCEL(celValues, t.text), variable: t.text}, nil
	case tokIRI, tokPName:
		if p.peekAt(1).is("(") {
			return celExpr{}, unsupportedError(t.pos, "function %s is not supported", t.text)
		}
		iri, err := p.parseIRI()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: quoteCEL(iriValue(iri)), iri: iri}, nil
	case tokString, tokInteger, tokDecimal, tokDouble:
		lit, err := p.parseLiteral()
		if err != nil {
			return celExpr{}, err
		}
		code := literalCEL(lit)
		return celExpr{code: code, str: strings.HasPrefix(code, `"`), lexical: quoteCEL(lit.Value)}, nil
	case tokWord:
		if t.isWord("true") || t.isWord("false") {
			p.advance()
			return celExpr{code: strings.ToLower(t.text)}, nil
		}
		return p.parseFunctionCall()
	}
	return celExpr{}, syntaxError(t.pos, "expected expression, found %s", p.describe(t))
}

// parseArgs parses '(' expr (',' expr)* ')'
func (p *parser) parseArgs() ([]celExpr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []celExpr
	if p.acceptPunct(")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.acceptPunct(")") {
			return args, nil
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
	}
}

// parseFunctionCall translates a built-in call
func (p *parser) parseFunctionCall() (celExpr, error) {
	name := p.advance()
	fn := strings.ToLower(name.text)
	if fn == "exists" || fn == "not" {
		return celExpr{}, unsupportedError(name.pos, "EXISTS is not supported")
	}

	args, err := p.parseArgs()
	if err != nil {
		return celExpr{}, err
	}

	arity := func(min, max int) error {
		if len(args) < min || len(args) > max {
			return syntaxError(name.pos, "%s expects %d to %d arguments, got %d", name.text, min, max, len(args))
		}
		return nil
	}
	variableArg := func() (string, error) {
		if err := arity(1, 1); err != nil {
			return "", err
		}
		if args[0].variable == "" {
			return "", unsupportedError(name.pos, "%s only accepts a variable", name.text)
		}
		return args[0].variable, nil
	}
	kindTest := func(kind string) (celExpr, error) {
		v, err := variableArg()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + indexCEL(celKinds, v) + " == " + quoteCEL(kind) + ")"}, nil
	}
	method := func(m string) (celExpr, error) {
		if err := arity(2, 2); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + stringArg(args[0]) + "." + m + "(" + stringArg(args[1]) + "))"}, nil
	}

	switch fn {
	case "bound":
		v, err := variableArg()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + quoteCEL(v) + " in " + celValues + ")"}, nil
	case "isiri", "isuri":
		return kindTest("uri")
	case "isblank":
		return kindTest("bnode")
	case "isliteral":
		return kindTest("literal")
	case "isnumeric":
		if err := arity(1, 1); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(type(" + args[0].code + ") == double)"}, nil
	case "str":
		if err := arity(1, 1); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: stringArg(args[0]), str: true}, nil
	case "lang":
		v, err := variableArg()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: indexCEL(celLangs, v), str: true}, nil
	case "datatype":
		v, err := variableArg()
		if err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(\"<\" + " + indexCEL(celDatatypes, v) + " + \">\")", str: true}, nil
	case "regex":
		if err := arity(2, 3); err != nil {
			return celExpr{}, err
		}
		pattern := stringArg(args[1])
		if len(args) == 3 {
			flags, ok := regexFlags(args[2])
			if !ok {
				return celExpr{}, unsupportedError(name.pos, "regex flags must be a string literal of i, m, s")
			}
			if flags != "" {
				pattern = quoteCEL("(?"+flags+")") + " + " + pattern
			}
		}
		return celExpr{code: "(" + stringArg(args[0]) + ".matches(" + pattern + "))"}, nil
	case "contains":
		return method("contains")
	case "strstarts":
		return method("startsWith")
	case "strends":
		return method("endsWith")
	case "lcase":
		if err := arity(1, 1); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + stringArg(args[0]) + ".lowerAscii())", str: true}, nil
	case "ucase":
		if err := arity(1, 1); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + stringArg(args[0]) + ".upperAscii())", str: true}, nil
	case "strlen":
		if err := arity(1, 1); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "double(size(" + stringArg(args[0]) + "))"}, nil
	case "sameterm":
		if err := arity(2, 2); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + args[0].code + " == " + args[1].code + ")"}, nil
	case "if":
		if err := arity(3, 3); err != nil {
			return celExpr{}, err
		}
		return celExpr{code: "(" + args[0].code + " ? " + args[1].code + " : " + args[2].code + ")"}, nil
	}
	return celExpr{}, unsupportedError(name.pos, "function %s is not supported", name.text)
}

// regexFlags extracts the flags of a regex call, which must be a constant
func regexFlags(arg celExpr) (string, bool) {
	flags, err := strconv.Unquote(arg.code)
	if err != nil {
		return "", false
	}
	for _, r := range flags {
		if r != 'i' && r != 'm' && r != 's' {
			return "", false
		}
	}
	return flags, true
}

// filterBindings builds the CEL activation for one solution
func filterBindings(sol Solution) map[string]interface{} {
	values := make(map[string]interface{}, len(sol))
	lexical := make(map[string]interface{}, len(sol))
	kinds := make(map[string]interface{}, len(sol))
	langs := make(map[string]interface{})
	datatypes := make(map[string]interface{})

	for name, term := range sol {
		lexical[name] = term.Value
		switch term.Kind {
		case rdfstore.KindIRI:
			values[name] = iriValue(term.Value)
			kinds[name] = "uri"
		case rdfstore.KindBlank:
			values[name] = "_:" + term.Value
			kinds[name] = "bnode"
		case rdfstore.KindLiteral:
			kinds[name] = "literal"
			langs[name] = term.Lang
			datatypes[name] = term.EffectiveDatatype()
			if f, ok := term.Numeric(); ok {
				values[name] = f
			} else if term.Datatype == rdfstore.XSDBoolean {
				values[name] = term.Value == "true" || term.Value == "1"
			} else if term.Lang != "" || term.Datatype != "" {
				values[name] = taggedValue(term)
			} else {
				values[name] = term.Value
			}
		}
	}

	return map[string]interface{}{
		celValues:    values,
		celLexical:   lexical,
		celKinds:     kinds,
		celLangs:     langs,
		celDatatypes: datatypes,
	}
}
