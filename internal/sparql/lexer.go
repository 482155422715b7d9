package sparql

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokInteger
	tokDecimal
	tokDouble
	tokLangTag
	tokBlank
	tokWord
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokIRI:
		return "IRI"
	case tokPName:
		return "prefixed name"
	case tokVar:
		return "variable"
	case tokString:
		return "string"
	case tokInteger, tokDecimal, tokDouble:
		return "number"
	case tokLangTag:
		return "language tag"
	case tokBlank:
		return "blank node"
	case tokWord:
		return "keyword"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// is reports whether t is the punctuation p
func (t token) is(p string) bool {
	return t.kind == tokPunct && t.text == p
}

// isWord reports whether t is the keyword w, case-insensitively
func (t token) isWord(w string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, w)
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

// lex splits a query into tokens
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
			return l.toks, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) emit(kind tokenKind, text string, start int) {
	l.toks = append(l.toks, token{kind: kind, text: text, pos: start})
}

func (l *lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return r
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) next() error {
	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '<':
		if iri, ok := l.scanIRI(); ok {
			l.emit(tokIRI, iri, start)
			return nil
		}
		if strings.HasPrefix(l.src[l.pos:], "<=") {
			l.pos += 2
			l.emit(tokPunct, "<=", start)
			return nil
		}
		l.pos++
		l.emit(tokPunct, "<", start)
		return nil
	case c == '?' || c == '$':
		l.pos++
		name := l.scanWhile(isVarChar)
		if name == "" {
			return syntaxError(start, "expected variable name after %q", string(c))
		}
		l.emit(tokVar, name, start)
		return nil
	case c == '"' || c == '\'':
		s, err := l.scanString()
		if err != nil {
			return err
		}
		l.emit(tokString, s, start)
		return nil
	case c == '@':
		l.pos++
		tag := l.scanWhile(func(r rune) bool { return r == '-' || isASCIIAlnum(r) })
		if tag == "" {
			return syntaxError(start, "expected language tag after '@'")
		}
		l.emit(tokLangTag, tag, start)
		return nil
	case c == '_' && l.peekRune(1) == ':':
		l.pos += 2
		label := trimTrailingDots(l, l.scanWhile(isPNChar))
		if label == "" {
			return syntaxError(start, "expected blank node label")
		}
		l.emit(tokBlank, label, start)
		return nil
	case isDigit(rune(c)) || (c == '.' && isDigit(l.peekRune(1))):
		l.scanNumber(start)
		return nil
	case c == ':' || isLetter(rune(c)) || c == '_':
		l.scanName(start)
		return nil
	}

	for _, p := range []string{"^^", "!=", ">=", "&&", "||"} {
		if strings.HasPrefix(l.src[l.pos:], p) {
			l.pos += len(p)
			l.emit(tokPunct, p, start)
			return nil
		}
	}

	if strings.ContainsRune("{}().;,*=>!+-/[]", rune(c)) {
		l.pos++
		l.emit(tokPunct, string(c), start)
		return nil
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return syntaxError(start, "unexpected character %q", r)
}

// scanIRI scans an IRIREF; it reports false when the '<' is an operator
func (l *lexer) scanIRI() (string, bool) {
	for i := l.pos + 1; i < len(l.src); i++ {
		switch l.src[i] {
		case '>':
			iri := l.src[l.pos+1 : i]
			l.pos = i + 1
			return iri, true
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}', '|', '^', '`', '\\':
			return "", false
		}
	}
	return "", false
}

// scanName scans a keyword or a prefixed name
func (l *lexer) scanName(start int) {
	prefix := l.scanWhile(func(r rune) bool { return isPNChar(r) && r != '.' })
	if l.pos < len(l.src) && l.src[l.pos] == ':' {
		l.pos++
		local := trimTrailingDots(l, l.scanWhile(func(r rune) bool { return isPNChar(r) || r == ':' || r == '%' }))
		l.emit(tokPName, prefix+":"+local, start)
		return
	}
	l.emit(tokWord, prefix, start)
}

func (l *lexer) scanNumber(start int) {
	kind := tokInteger
	l.scanWhile(isDigit)
	if l.pos < len(l.src) && l.src[l.pos] == '.' && isDigit(l.peekRune(1)) {
		kind = tokDecimal
		l.pos++
		l.scanWhile(isDigit)
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.scanWhile(isDigit) == "" {
			l.pos = save
		} else {
			kind = tokDouble
		}
	}
	l.emit(kind, l.src[start:l.pos], start)
}

func (l *lexer) scanString() (string, error) {
	start := l.pos
	quote := l.src[l.pos]
	long := strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3))
	if long {
		l.pos += 3
	} else {
		l.pos++
	}

	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case long && strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3)):
			l.pos += 3
			return b.String(), nil
		case !long && c == quote:
			l.pos++
			return b.String(), nil
		case !long && (c == '\n' || c == '\r'):
			return "", syntaxError(start, "unterminated string")
		case c == '\\':
			r, err := l.scanEscape()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			b.WriteRune(r)
			l.pos += size
		}
	}
	return "", syntaxError(start, "unterminated string")
}

func (l *lexer) scanEscape() (rune, error) {
	start := l.pos
	if l.pos+1 >= len(l.src) {
		return 0, syntaxError(start, "unterminated escape sequence")
	}
	c := l.src[l.pos+1]
	l.pos += 2
	switch c {
	case 't':
		return '\t', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case '"', '\'', '\\':
		return rune(c), nil
	case 'u', 'U':
		n := 4
		if c == 'U' {
			n = 8
		}
		if l.pos+n > len(l.src) {
			return 0, syntaxError(start, "truncated unicode escape")
		}
		v, err := strconv.ParseUint(l.src[l.pos:l.pos+n], 16, 32)
		if err != nil {
			return 0, syntaxError(start, "invalid unicode escape")
		}
		l.pos += n
		return rune(v), nil
	}
	return 0, syntaxError(start, "invalid escape sequence \\%c", c)
}

func (l *lexer) scanWhile(pred func(rune) bool) string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !pred(r) {
			break
		}
		l.pos += size
	}
	return l.src[start:l.pos]
}

// trimTrailingDots gives back trailing '.' so "ex:o." ends a triple
func trimTrailingDots(l *lexer, s string) string {
	trimmed := strings.TrimRight(s, ".")
	l.pos -= len(s) - len(trimmed)
	return trimmed
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isASCIIAlnum(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isLetter(r rune) bool { return unicode.IsLetter(r) }

func isVarChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isPNChar(r rune) bool {
	return r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
