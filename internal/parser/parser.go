package parser

import (
	"fmt"
	"strconv"

	"marl/internal/ast"
	"marl/internal/lexer"
	"marl/internal/token"
)

const (
	_ int = iota
	LOWEST
	LOGICAL_OR  // ||
	LOGICAL_AND // &&
	BITWISE_OR  // |
	BITWISE_XOR // ^
	BITWISE_AND // &
	EQUALS      // == !=
	COMPARISON  // < > <= >=
	SHIFT       // << >>
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -x !x ~x
	CALL        // f(x), a.b, a[b]
)

var precedences = map[token.TokenType]int{
	token.LOGICAL_OR:  LOGICAL_OR,
	token.LOGICAL_AND: LOGICAL_AND,
	token.BITWISE_OR:  BITWISE_OR,
	token.BITWISE_XOR: BITWISE_XOR,
	token.BITWISE_AND: BITWISE_AND,
	token.EQ:          EQUALS,
	token.NOT_EQ:      EQUALS,
	token.LT:          COMPARISON,
	token.LT_EQ:       COMPARISON,
	token.GT:          COMPARISON,
	token.GT_EQ:       COMPARISON,
	token.SHIFT_LEFT:  SHIFT,
	token.SHIFT_RIGHT: SHIFT,
	token.PLUS:        SUM,
	token.MINUS:       SUM,
	token.ASTERISK:    PRODUCT,
	token.SLASH:       PRODUCT,
	token.PERCENT:     PRODUCT,
	token.PERIOD:      CALL,
	token.LPAREN:      CALL,
	token.LBRACKET:    CALL,
}

var binaryOps = map[token.TokenType]ast.BinaryOp{
	token.LOGICAL_OR:  ast.BopOr,
	token.LOGICAL_AND: ast.BopAnd,
	token.BITWISE_OR:  ast.BopBitwiseOr,
	token.BITWISE_XOR: ast.BopBitwiseXor,
	token.BITWISE_AND: ast.BopBitwiseAnd,
	token.EQ:          ast.BopManifestEqual,
	token.NOT_EQ:      ast.BopManifestUnequal,
	token.LT:          ast.BopLess,
	token.LT_EQ:       ast.BopLessEq,
	token.GT:          ast.BopGreater,
	token.GT_EQ:       ast.BopGreaterEq,
	token.SHIFT_LEFT:  ast.BopShiftL,
	token.SHIFT_RIGHT: ast.BopShiftR,
	token.PLUS:        ast.BopPlus,
	token.MINUS:       ast.BopMinus,
	token.ASTERISK:    ast.BopMult,
	token.SLASH:       ast.BopDiv,
	token.PERCENT:     ast.BopPercent,
}

type (
	prefixParseFn func() ast.Node
	infixParseFn  func(ast.Node) ast.Node
)

type Parser struct {
	l      *lexer.Lexer
	file   string
	intern *ast.Interner
	errors []string

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn
}

func New(l *lexer.Lexer, file string, intern *ast.Interner) *Parser {
	p := &Parser{
		l:      l,
		file:   file,
		intern: intern,
		errors: []string{},
	}

	p.prefixParseFns = make(map[token.TokenType]prefixParseFn)
	p.registerPrefix(token.NULL, p.parseNull)
	p.registerPrefix(token.TRUE, p.parseBoolean)
	p.registerPrefix(token.FALSE, p.parseBoolean)
	p.registerPrefix(token.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.SELF, p.parseSelf)
	p.registerPrefix(token.DOLLAR, p.parseDollar)
	p.registerPrefix(token.SUPER, p.parseSuper)
	p.registerPrefix(token.BANG, p.parsePrefixExpression)
	p.registerPrefix(token.MINUS, p.parsePrefixExpression)
	p.registerPrefix(token.PLUS, p.parsePrefixExpression)
	p.registerPrefix(token.COMPLEMENT, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.LBRACKET, p.parseArrayLiteral)
	p.registerPrefix(token.LBRACE, p.parseObjectLiteral)
	p.registerPrefix(token.IF, p.parseConditional)
	p.registerPrefix(token.FUNCTION, p.parseFunctionLiteral)
	p.registerPrefix(token.LOCAL, p.parseLocal)
	p.registerPrefix(token.IMPORT, p.parseImport)
	p.registerPrefix(token.IMPORTSTR, p.parseImportStr)
	p.registerPrefix(token.ERROR, p.parseError)
	p.registerPrefix(token.ASSERT, p.parseAssert)

	p.infixParseFns = make(map[token.TokenType]infixParseFn)
	for tt := range binaryOps {
		p.registerInfix(tt, p.parseInfixExpression)
	}
	p.registerInfix(token.PERIOD, p.parseFieldAccess)
	p.registerInfix(token.LBRACKET, p.parseIndexExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)

	// Read two tokens, so curToken and peekToken are both set.
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) registerPrefix(tokenType token.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType token.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) addError(message string, args ...interface{}) {
	msg := fmt.Sprintf(message, args...)
	p.errors = append(p.errors, fmt.Sprintf("%s:%d:%d %s",
		p.file, p.curToken.Pos.Line, p.curToken.Pos.Column, msg))
}

func (p *Parser) peekError(t token.TokenType) {
	p.errors = append(p.errors, fmt.Sprintf("%s:%d:%d expected next token to be %s, got %s instead",
		p.file, p.peekToken.Pos.Line, p.peekToken.Pos.Column, t, p.peekToken.Type))
}

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) Errors() []string {
	errs := append([]string{}, p.l.Errors()...)
	return append(errs, p.errors...)
}

func (p *Parser) loc() ast.LocationRange {
	return ast.MakeLocation(p.file, p.curToken.Pos.Line, p.curToken.Pos.Column)
}

func (p *Parser) base() ast.NodeBase {
	return ast.NodeBase{LocRange: p.loc()}
}

// Parse consumes the whole input as a single expression.
func (p *Parser) Parse() ast.Node {
	expr := p.parseExpression(LOWEST)
	if !p.peekTokenIs(token.EOF) {
		p.addError("unexpected trailing token %s", p.peekToken.Type)
	}
	return expr
}

func (p *Parser) parseExpression(precedence int) ast.Node {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.addError("no parse rule for token %s", p.curToken.Type)
		return nil
	}
	left := prefix()
	if left == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
		if left == nil {
			return nil
		}
	}

	return left
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseNull() ast.Node {
	return &ast.LiteralNull{NodeBase: p.base()}
}

func (p *Parser) parseBoolean() ast.Node {
	return &ast.LiteralBoolean{NodeBase: p.base(), Value: p.curTokenIs(token.TRUE)}
}

func (p *Parser) parseNumberLiteral() ast.Node {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addError("could not parse %q as a number", p.curToken.Literal)
		return nil
	}
	return &ast.LiteralNumber{NodeBase: p.base(), Value: value, OriginalString: p.curToken.Literal}
}

func (p *Parser) parseStringLiteral() ast.Node {
	return &ast.LiteralString{NodeBase: p.base(), Value: p.curToken.Literal}
}

func (p *Parser) parseIdentifier() ast.Node {
	return &ast.Var{NodeBase: p.base(), ID: p.intern.Intern(p.curToken.Literal)}
}

func (p *Parser) parseSelf() ast.Node {
	return &ast.Self{NodeBase: p.base()}
}

func (p *Parser) parseDollar() ast.Node {
	return &ast.Dollar{NodeBase: p.base()}
}

// parseSuper handles super.f and super[e]; bare super is not an expression.
func (p *Parser) parseSuper() ast.Node {
	base := p.base()
	switch {
	case p.peekTokenIs(token.PERIOD):
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		return &ast.SuperIndex{
			NodeBase: base,
			Index:    &ast.LiteralString{NodeBase: p.base(), Value: p.curToken.Literal},
		}
	case p.peekTokenIs(token.LBRACKET):
		p.nextToken()
		p.nextToken()
		index := p.parseExpression(LOWEST)
		if !p.expectPeek(token.RBRACKET) {
			return nil
		}
		return &ast.SuperIndex{NodeBase: base, Index: index}
	default:
		p.addError("expected . or [ after super")
		return nil
	}
}

func (p *Parser) parsePrefixExpression() ast.Node {
	base := p.base()
	var op ast.UnaryOp
	switch p.curToken.Type {
	case token.BANG:
		op = ast.UopNot
	case token.MINUS:
		op = ast.UopMinus
	case token.PLUS:
		op = ast.UopPlus
	case token.COMPLEMENT:
		op = ast.UopBitwiseNot
	}
	p.nextToken()
	return &ast.Unary{NodeBase: base, Op: op, Expr: p.parseExpression(PREFIX)}
}

func (p *Parser) parseInfixExpression(left ast.Node) ast.Node {
	base := p.base()
	op := binaryOps[p.curToken.Type]
	precedence := precedences[p.curToken.Type]
	p.nextToken()
	right := p.parseExpression(precedence)
	return &ast.Binary{NodeBase: base, Left: left, Op: op, Right: right}
}

func (p *Parser) parseGroupedExpression() ast.Node {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseFieldAccess(left ast.Node) ast.Node {
	base := p.base()
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	return &ast.Index{
		NodeBase: base,
		Target:   left,
		Index:    &ast.LiteralString{NodeBase: p.base(), Value: p.curToken.Literal},
	}
}

func (p *Parser) parseIndexExpression(left ast.Node) ast.Node {
	base := p.base()
	p.nextToken()
	index := p.parseExpression(LOWEST)
	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return &ast.Index{NodeBase: base, Target: left, Index: index}
}

func (p *Parser) parseCallExpression(target ast.Node) ast.Node {
	// The call site is the start of the target, not the parenthesis; stack
	// traces read better that way.
	base := ast.NodeBase{LocRange: target.Loc()}
	args := p.parseExpressionList(token.RPAREN)
	apply := &ast.Apply{NodeBase: base, Target: target, Args: args}
	if p.peekTokenIs(token.TAILSTRICT) {
		p.nextToken()
		apply.TailStrict = true
	}
	return apply
}

func (p *Parser) parseExpressionList(end token.TokenType) []ast.Node {
	list := []ast.Node{}
	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}

	p.nextToken()
	list = append(list, p.parseExpression(LOWEST))

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		if p.peekTokenIs(end) { // trailing comma
			break
		}
		p.nextToken()
		list = append(list, p.parseExpression(LOWEST))
	}

	if !p.expectPeek(end) {
		return nil
	}
	return list
}

func (p *Parser) parseConditional() ast.Node {
	base := p.base()
	p.nextToken()
	cond := p.parseExpression(LOWEST)
	if !p.expectPeek(token.THEN) {
		return nil
	}
	p.nextToken()
	branchTrue := p.parseExpression(LOWEST)
	var branchFalse ast.Node
	if p.peekTokenIs(token.ELSE) {
		p.nextToken()
		p.nextToken()
		branchFalse = p.parseExpression(LOWEST)
	}
	return &ast.Conditional{NodeBase: base, Cond: cond, BranchTrue: branchTrue, BranchFalse: branchFalse}
}

func (p *Parser) parseFunctionLiteral() ast.Node {
	base := p.base()
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	params := p.parseFunctionParameters()
	p.nextToken()
	body := p.parseExpression(LOWEST)
	return &ast.Function{NodeBase: base, Params: params, Body: body}
}

func (p *Parser) parseFunctionParameters() ast.Identifiers {
	params := ast.Identifiers{}

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params
	}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	params = append(params, p.intern.Intern(p.curToken.Literal))

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		params = append(params, p.intern.Intern(p.curToken.Literal))
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return params
}

// parseLocal parses local b1, b2, ...; body with optional function sugar on
// each binding.
func (p *Parser) parseLocal() ast.Node {
	base := p.base()
	var binds []ast.LocalBind

	for {
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		bind, ok := p.parseLocalBind()
		if !ok {
			return nil
		}
		binds = append(binds, bind)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}

	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	p.nextToken()
	body := p.parseExpression(LOWEST)
	return &ast.Local{NodeBase: base, Binds: binds, Body: body}
}

func (p *Parser) parseLocalBind() (ast.LocalBind, bool) {
	variable := p.intern.Intern(p.curToken.Literal)
	fnBase := p.base()

	var params ast.Identifiers
	isFunc := false
	if p.peekTokenIs(token.LPAREN) {
		p.nextToken()
		params = p.parseFunctionParameters()
		isFunc = true
	}

	if !p.expectPeek(token.ASSIGN) {
		return ast.LocalBind{}, false
	}
	p.nextToken()
	body := p.parseExpression(LOWEST)

	if isFunc {
		body = &ast.Function{NodeBase: fnBase, Params: params, Body: body}
	}
	return ast.LocalBind{Variable: variable, Body: body}, true
}

func (p *Parser) parseImport() ast.Node {
	base := p.base()
	if !p.expectPeek(token.STRING) {
		return nil
	}
	return &ast.Import{NodeBase: base, Path: p.curToken.Literal}
}

func (p *Parser) parseImportStr() ast.Node {
	base := p.base()
	if !p.expectPeek(token.STRING) {
		return nil
	}
	return &ast.ImportStr{NodeBase: base, Path: p.curToken.Literal}
}

func (p *Parser) parseError() ast.Node {
	base := p.base()
	p.nextToken()
	return &ast.Error{NodeBase: base, Expr: p.parseExpression(LOWEST)}
}

// parseAssert parses the expression form: assert cond [: message]; rest
func (p *Parser) parseAssert() ast.Node {
	base := p.base()
	p.nextToken()
	cond := p.parseExpression(LOWEST)
	var message ast.Node
	if p.peekTokenIs(token.COLON) {
		p.nextToken()
		p.nextToken()
		message = p.parseExpression(LOWEST)
	}
	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	p.nextToken()
	rest := p.parseExpression(LOWEST)
	return &ast.AssertExpr{NodeBase: base, Cond: cond, Message: message, Rest: rest}
}

func (p *Parser) parseArrayLiteral() ast.Node {
	base := p.base()

	if p.peekTokenIs(token.RBRACKET) {
		p.nextToken()
		return &ast.Array{NodeBase: base, Elements: []ast.Node{}}
	}

	p.nextToken()
	first := p.parseExpression(LOWEST)

	// [ body for x in arr if cond ... ]
	if p.peekTokenIs(token.FOR) {
		forVar, forExpr, ifExprs, ok := p.parseCompSpec()
		if !ok {
			return nil
		}
		if !p.expectPeek(token.RBRACKET) {
			return nil
		}
		return &ast.ArrayComp{NodeBase: base, Body: first, ForVar: forVar, ForExpr: forExpr, IfExprs: ifExprs}
	}

	elements := []ast.Node{first}
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		if p.peekTokenIs(token.RBRACKET) { // trailing comma
			break
		}
		p.nextToken()
		elements = append(elements, p.parseExpression(LOWEST))
	}
	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return &ast.Array{NodeBase: base, Elements: elements}
}

// parseCompSpec parses for x in e followed by any number of if e clauses.
// The cursor is left on the last token of the final clause.
func (p *Parser) parseCompSpec() (*ast.Identifier, ast.Node, []ast.Node, bool) {
	p.nextToken() // onto FOR
	if !p.expectPeek(token.IDENT) {
		return nil, nil, nil, false
	}
	forVar := p.intern.Intern(p.curToken.Literal)
	if !p.expectPeek(token.IN) {
		return nil, nil, nil, false
	}
	p.nextToken()
	forExpr := p.parseExpression(LOWEST)

	var ifExprs []ast.Node
	for p.peekTokenIs(token.IF) {
		p.nextToken()
		p.nextToken()
		ifExprs = append(ifExprs, p.parseExpression(LOWEST))
	}
	return forVar, forExpr, ifExprs, true
}

func (p *Parser) parseObjectLiteral() ast.Node {
	base := p.base()

	if p.peekTokenIs(token.RBRACE) {
		p.nextToken()
		return &ast.Object{NodeBase: base, Fields: []ast.ObjectField{}}
	}

	var fields []ast.ObjectField
	for {
		p.nextToken()
		field, ok := p.parseObjectField()
		if !ok {
			return nil
		}
		fields = append(fields, field)

		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
			if p.peekTokenIs(token.RBRACE) { // trailing comma
				p.nextToken()
				return &ast.Object{NodeBase: base, Fields: fields}
			}
			if p.peekTokenIs(token.FOR) {
				break
			}
			continue
		}
		if p.peekTokenIs(token.FOR) {
			break
		}
		if !p.expectPeek(token.RBRACE) {
			return nil
		}
		return &ast.Object{NodeBase: base, Fields: fields}
	}

	// Object comprehension: exactly one computed field, no locals or asserts.
	if len(fields) != 1 || fields[0].Kind != ast.FieldExpr {
		p.addError("object comprehension must have a single [e]: e field")
		return nil
	}
	forVar, forExpr, ifExprs, ok := p.parseCompSpec()
	if !ok {
		return nil
	}
	if !p.expectPeek(token.RBRACE) {
		return nil
	}
	return &ast.ObjectComp{NodeBase: base, Field: fields[0], ForVar: forVar, ForExpr: forExpr, IfExprs: ifExprs}
}

func (p *Parser) parseObjectField() (ast.ObjectField, bool) {
	switch p.curToken.Type {
	case token.LOCAL:
		if !p.expectPeek(token.IDENT) {
			return ast.ObjectField{}, false
		}
		id := p.intern.Intern(p.curToken.Literal)
		fnBase := p.base()
		var params ast.Identifiers
		isFunc := false
		if p.peekTokenIs(token.LPAREN) {
			p.nextToken()
			params = p.parseFunctionParameters()
			isFunc = true
		}
		if !p.expectPeek(token.ASSIGN) {
			return ast.ObjectField{}, false
		}
		p.nextToken()
		body := p.parseExpression(LOWEST)
		if isFunc {
			body = &ast.Function{NodeBase: fnBase, Params: params, Body: body}
		}
		return ast.ObjectField{Kind: ast.ObjectLocal, ID: id, Expr2: body}, true

	case token.ASSERT:
		p.nextToken()
		cond := p.parseExpression(LOWEST)
		var message ast.Node
		if p.peekTokenIs(token.COLON) {
			p.nextToken()
			p.nextToken()
			message = p.parseExpression(LOWEST)
		}
		return ast.ObjectField{Kind: ast.ObjectAssert, NameExpr: cond, Expr2: message}, true

	case token.IDENT, token.STRING, token.LBRACKET:
		return p.parseNamedField()

	default:
		p.addError("unexpected token %s in object", p.curToken.Type)
		return ast.ObjectField{}, false
	}
}

func (p *Parser) parseNamedField() (ast.ObjectField, bool) {
	field := ast.ObjectField{}

	switch p.curToken.Type {
	case token.IDENT:
		field.Kind = ast.FieldID
		field.ID = p.intern.Intern(p.curToken.Literal)
	case token.STRING:
		field.Kind = ast.FieldString
		field.NameExpr = &ast.LiteralString{NodeBase: p.base(), Value: p.curToken.Literal}
	case token.LBRACKET:
		field.Kind = ast.FieldExpr
		p.nextToken()
		field.NameExpr = p.parseExpression(LOWEST)
		if !p.expectPeek(token.RBRACKET) {
			return field, false
		}
	}

	fnBase := p.base()
	isFunc := false
	if p.peekTokenIs(token.LPAREN) {
		p.nextToken()
		field.Params = p.parseFunctionParameters()
		isFunc = true
	}

	p.nextToken()
	switch p.curToken.Type {
	case token.COLON:
		field.Hide = ast.HideInherit
	case token.DOUBLE_COLON:
		field.Hide = ast.HideHidden
	case token.TRIPLE_COLON:
		field.Hide = ast.HideVisible
	case token.PLUS_COLON:
		field.Hide = ast.HideInherit
		field.SuperSugar = true
	case token.PLUS_DCOLON:
		field.Hide = ast.HideHidden
		field.SuperSugar = true
	case token.PLUS_TCOLON:
		field.Hide = ast.HideVisible
		field.SuperSugar = true
	default:
		p.addError("expected field separator, got %s", p.curToken.Type)
		return field, false
	}

	p.nextToken()
	body := p.parseExpression(LOWEST)
	if isFunc {
		body = &ast.Function{NodeBase: fnBase, Params: field.Params, Body: body}
	}
	field.Expr2 = body
	return field, true
}
