package lexer

import (
	"testing"

	"marl/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `local x = 1;
// line comment
# alt comment
/* block
   comment */
{
  a: 1,
  b:: 2.5,
  c::: "str",
  d+: [1e2, 1.5e-3],
  [e]: f(g) tailstrict,
}
if a == b && c != d then self else super.f
x <= y >= z < w > v
p << q >> r & s | t ^ u
~m !n -o +i
$.out
'single' "double\n\t\\\""
import importstr error assert function for in true false null
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.LOCAL, "local"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},
		{token.LBRACE, "{"},
		{token.IDENT, "a"},
		{token.COLON, ":"},
		{token.NUMBER, "1"},
		{token.COMMA, ","},
		{token.IDENT, "b"},
		{token.DOUBLE_COLON, "::"},
		{token.NUMBER, "2.5"},
		{token.COMMA, ","},
		{token.IDENT, "c"},
		{token.TRIPLE_COLON, ":::"},
		{token.STRING, "str"},
		{token.COMMA, ","},
		{token.IDENT, "d"},
		{token.PLUS_COLON, "+:"},
		{token.LBRACKET, "["},
		{token.NUMBER, "1e2"},
		{token.COMMA, ","},
		{token.NUMBER, "1.5e-3"},
		{token.RBRACKET, "]"},
		{token.COMMA, ","},
		{token.LBRACKET, "["},
		{token.IDENT, "e"},
		{token.RBRACKET, "]"},
		{token.COLON, ":"},
		{token.IDENT, "f"},
		{token.LPAREN, "("},
		{token.IDENT, "g"},
		{token.RPAREN, ")"},
		{token.TAILSTRICT, "tailstrict"},
		{token.COMMA, ","},
		{token.RBRACE, "}"},
		{token.IF, "if"},
		{token.IDENT, "a"},
		{token.EQ, "=="},
		{token.IDENT, "b"},
		{token.LOGICAL_AND, "&&"},
		{token.IDENT, "c"},
		{token.NOT_EQ, "!="},
		{token.IDENT, "d"},
		{token.THEN, "then"},
		{token.SELF, "self"},
		{token.ELSE, "else"},
		{token.SUPER, "super"},
		{token.PERIOD, "."},
		{token.IDENT, "f"},
		{token.IDENT, "x"},
		{token.LT_EQ, "<="},
		{token.IDENT, "y"},
		{token.GT_EQ, ">="},
		{token.IDENT, "z"},
		{token.LT, "<"},
		{token.IDENT, "w"},
		{token.GT, ">"},
		{token.IDENT, "v"},
		{token.IDENT, "p"},
		{token.SHIFT_LEFT, "<<"},
		{token.IDENT, "q"},
		{token.SHIFT_RIGHT, ">>"},
		{token.IDENT, "r"},
		{token.BITWISE_AND, "&"},
		{token.IDENT, "s"},
		{token.BITWISE_OR, "|"},
		{token.IDENT, "t"},
		{token.BITWISE_XOR, "^"},
		{token.IDENT, "u"},
		{token.COMPLEMENT, "~"},
		{token.IDENT, "m"},
		{token.BANG, "!"},
		{token.IDENT, "n"},
		{token.MINUS, "-"},
		{token.IDENT, "o"},
		{token.PLUS, "+"},
		{token.IDENT, "i"},
		{token.DOLLAR, "$"},
		{token.PERIOD, "."},
		{token.IDENT, "out"},
		{token.STRING, "single"},
		{token.STRING, "double\n\t\\\""},
		{token.IMPORT, "import"},
		{token.IMPORTSTR, "importstr"},
		{token.ERROR, "error"},
		{token.ASSERT, "assert"},
		{token.FUNCTION, "function"},
		{token.FOR, "for"},
		{token.IN, "in"},
		{token.TRUE, "true"},
		{token.FALSE, "false"},
		{token.NULL, "null"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong token type, expected=%q, got=%q (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal, expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
	if errs := l.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected lexer errors: %v", errs)
	}
}

func TestLinePositions(t *testing.T) {
	l := New("a\n  bb\n")
	tok := l.NextToken()
	if tok.Pos.Line != 1 || tok.Pos.Column != 1 {
		t.Errorf("a at %d:%d", tok.Pos.Line, tok.Pos.Column)
	}
	tok = l.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("bb at %d:%d", tok.Pos.Line, tok.Pos.Column)
	}
}

func TestUnicodeEscape(t *testing.T) {
	l := New(`"\u00e9\u0041"`)
	tok := l.NextToken()
	if tok.Literal != "éA" {
		t.Errorf("expected éA, got %q", tok.Literal)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
	}{
		{`"unterminated`},
		{`"bad \q escape"`},
		{"/* unterminated"},
		{"@"},
	}
	for _, tt := range tests {
		l := New(tt.input)
		for {
			if tok := l.NextToken(); tok.Type == token.EOF || tok.Type == token.ILLEGAL {
				break
			}
		}
		if len(l.Errors()) == 0 {
			t.Errorf("%q: expected a lexer error", tt.input)
		}
	}
}
