package iql

// Lexer tokenizes query input.
type Lexer struct {
	input string
	pos   int // offset of ch
	next  int // offset after ch
	ch    byte
}

// NewLexer creates a new lexer for the input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos}

	switch l.ch {
	case '(':
		tok.Type, tok.Literal = TokenLParen, "("
	case ')':
		tok.Type, tok.Literal = TokenRParen, ")"
	case ',':
		tok.Type, tok.Literal = TokenComma, ","
	case '=':
		tok.Type, tok.Literal = TokenEq, "="
	case '~':
		tok.Type, tok.Literal = TokenContains, "~"
	case '!':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok.Type, tok.Literal = TokenNeq, "!="
		case '~':
			l.readChar()
			tok.Type, tok.Literal = TokenNotContains, "!~"
		default:
			tok.Type, tok.Literal = TokenIllegal, "!"
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenLte, "<="
		} else {
			tok.Type, tok.Literal = TokenLt, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenGte, ">="
		} else {
			tok.Type, tok.Literal = TokenGt, ">"
		}
	case '"', '\'':
		tok.Type = TokenString
		lit, ok := l.readString(l.ch)
		if !ok {
			tok.Type = TokenIllegal
		}
		tok.Literal = lit
		return tok
	case 0:
		tok.Type = TokenEOF
		return tok
	default:
		switch {
		case isLetter(l.ch):
			tok.Literal = l.readIdentifier()
			tok.Type = LookupKeyword(tok.Literal)
			return tok
		case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())):
			tok.Literal = l.readNumber()
			tok.Type = TokenNumber
			return tok
		default:
			tok.Type, tok.Literal = TokenIllegal, string(l.ch)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readChar() {
	l.pos = l.next
	if l.next >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.next]
	}
	l.next++
}

func (l *Lexer) peekChar() byte {
	if l.next >= len(l.input) {
		return 0
	}
	return l.input[l.next]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readIdentifier reads letters, digits, underscores, hyphens and dots, so
// issue keys like CORE-12 lex as a single identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '-' || l.ch == '.' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readString reads a quoted string. ok is false when the closing quote is
// missing.
func (l *Lexer) readString(quote byte) (lit string, ok bool) {
	l.readChar() // opening quote
	start := l.pos
	for l.ch != quote && l.ch != 0 {
		l.readChar()
	}
	lit = l.input[start:l.pos]
	if l.ch != quote {
		return lit, false
	}
	l.readChar() // closing quote
	return lit, true
}

// readNumber reads an integer, optionally negative, optionally followed by
// a d/h/m unit for relative dates.
func (l *Lexer) readNumber() string {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	switch l.ch {
	case 'd', 'D', 'h', 'H', 'm', 'M', 'w', 'W':
		l.readChar()
	}
	// ISO dates lex as one number token: 2025-01-31
	for isDigit(l.ch) || l.ch == '-' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
