package sql

import "strconv"

// resyncSet lists the token kinds a given nonterminal treats as safe
// recovery points, per-nonterminal instead of scattered catch blocks.
var resyncSet = map[string][]TokenKind{
	"statement": {SEMICOLON, SELECT, INSERT, UPDATE, DELETE, CREATE, DROP, ALTER, PRAGMA, VACUUM, BEGIN, COMMIT, ROLLBACK},
	"clause":    {WHERE, FROM, JOIN, GROUP, HAVING, ORDER, LIMIT, SEMICOLON},
}

// Parser is a hand-written recursive-descent parser over the token stream
// produced by Lexer.
type Parser struct {
	lex        *Lexer
	cur        Token
	peek       Token
	errors     []*ParseError
	paramCount int
}

// NewParser creates a Parser over src.
func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.advance()
	p.advance()
	return p
}

// Parse consumes the entire input and returns a non-nil *Program. Parse
// errors do not stop the scan: callers inspect Program.Errors.
func Parse(src string) *Program {
	return NewParser(src).ParseProgram()
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.Next()
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{Message: msg, Token: p.cur, Pos: p.cur.Pos})
}

// ParseProgram parses a semicolon-separated sequence of statements.
func (p *Parser) ParseProgram() *Program {
	prog := &Program{}

	for p.cur.Kind != EOF {
		if p.cur.Kind == SEMICOLON {
			p.advance()
			continue
		}

		stmt := p.parseStatement()
		prog.Statements = append(prog.Statements, stmt)

		for p.cur.Kind != SEMICOLON && p.cur.Kind != EOF {
			p.advance()
		}
	}

	prog.Errors = p.errors
	return prog
}

func (p *Parser) parseStatement() Statement {
	switch p.cur.Kind {
	case SELECT:
		return p.parseSelect()
	case INSERT:
		return p.parseInsert()
	case UPDATE:
		return p.parseUpdate()
	case DELETE:
		return p.parseDelete()
	case CREATE:
		return p.parseCreateTable()
	case DROP:
		return p.parseDropTable()
	case PRAGMA:
		return p.parsePragma()
	case VACUUM:
		return p.parseVacuum()
	case BEGIN, COMMIT, ROLLBACK:
		kind := p.cur.Kind
		p.advance()
		return &TxStmt{Kind: kind}
	default:
		p.addError("unexpected token " + p.cur.Literal + " at start of statement")
		return p.recover()
	}
}

// recover skips tokens until a resync point for "statement" is found,
// returning an ErrorNode carrying the error that triggered recovery.
func (p *Parser) recover() Statement {
	err := p.errors[len(p.errors)-1]
	for !in(p.cur.Kind, resyncSet["statement"]) && p.cur.Kind != EOF {
		p.advance()
	}
	return &ErrorNode{Err: err}
}

func in(k TokenKind, set []TokenKind) bool {
	for _, s := range set {
		if s == k {
			return true
		}
	}
	return false
}

func (p *Parser) expect(kind TokenKind, what string) bool {
	if p.cur.Kind != kind {
		p.addError("expected " + what + ", got " + p.cur.Literal)
		return false
	}
	p.advance()
	return true
}

// --- SELECT ---

func (p *Parser) parseSelect() Statement {
	p.advance() // consume SELECT

	stmt := &SelectStmt{}
	stmt.Columns = p.parseSelectColumns()

	if p.cur.Kind != FROM {
		p.addError("expected FROM")
		return p.recover()
	}
	p.advance()

	if p.cur.Kind == LPAREN {
		p.advance()
		if p.cur.Kind != SELECT {
			p.addError("expected SELECT after ( in FROM clause")
			return p.recover()
		}
		sub := p.parseSelect()
		p.expect(RPAREN, ")")
		if ss, ok := sub.(*SelectStmt); ok {
			stmt.FromSub = ss
		}
		if p.cur.Kind == AS {
			p.advance()
		}
		if p.cur.Kind != IDENT {
			p.addError("expected alias for subquery in FROM clause")
			return p.recover()
		}
		stmt.FromAlias = p.cur.Literal
		stmt.Table = p.cur.Literal
		p.advance()
	} else if p.cur.Kind == IDENT {
		stmt.Table = p.cur.Literal
		p.advance()
	} else {
		p.addError("expected table name after FROM")
		return p.recover()
	}

	for p.cur.Kind == JOIN || p.cur.Kind == INNER || p.cur.Kind == LEFT || p.cur.Kind == RIGHT {
		join, ok := p.parseJoin()
		if !ok {
			break
		}
		stmt.Joins = append(stmt.Joins, join)
	}

	if p.cur.Kind == WHERE {
		p.advance()
		stmt.Where = p.parseExpr()
	}

	if p.cur.Kind == GROUP {
		p.advance()
		p.expect(BY, "BY")
		for p.cur.Kind == IDENT {
			stmt.GroupBy = append(stmt.GroupBy, p.cur.Literal)
			p.advance()
			if p.cur.Kind != COMMA {
				break
			}
			p.advance()
		}
	}

	if p.cur.Kind == HAVING {
		p.advance()
		stmt.Having = p.parseExpr()
	}

	if p.cur.Kind == ORDER {
		p.advance()
		p.expect(BY, "BY")
		if p.cur.Kind == IDENT {
			stmt.OrderBy = p.cur.Literal
			p.advance()
		}
		if p.cur.Kind == DESC {
			stmt.Desc = true
			p.advance()
		} else if p.cur.Kind == ASC {
			p.advance()
		}
	}

	if p.cur.Kind == LIMIT {
		p.advance()
		if p.cur.Kind == NUMBER {
			n, _ := strconv.Atoi(p.cur.Literal)
			stmt.Limit = n
			stmt.HasLimit = true
			p.advance()
		}
		if p.cur.Kind == OFFSET {
			p.advance()
			if p.cur.Kind == NUMBER {
				n, _ := strconv.Atoi(p.cur.Literal)
				stmt.Offset = n
				p.advance()
			}
		}
	}

	return stmt
}

// parseJoin consumes one [INNER|LEFT|RIGHT] JOIN table [[AS] alias] ON expr
// clause. ok is false when the clause couldn't be completed, in which case
// the caller stops scanning for further joins rather than looping forever.
func (p *Parser) parseJoin() (Join, bool) {
	kind := p.cur.Kind
	p.advance()
	if kind != JOIN {
		if !p.expect(JOIN, "JOIN") {
			return Join{}, false
		}
	}

	if p.cur.Kind != IDENT {
		p.addError("expected table name after JOIN")
		return Join{}, false
	}
	join := Join{Kind: kind, Table: p.cur.Literal}
	p.advance()

	if p.cur.Kind == AS {
		p.advance()
	}
	if p.cur.Kind == IDENT {
		join.Alias = p.cur.Literal
		p.advance()
	}

	if !p.expect(ON, "ON") {
		return Join{}, false
	}
	join.On = p.parseExpr()
	return join, true
}

func (p *Parser) parseSelectColumns() []SelectColumn {
	var cols []SelectColumn
	for {
		cols = append(cols, p.parseSelectColumn())
		if p.cur.Kind != COMMA {
			break
		}
		p.advance()
	}
	return cols
}

func (p *Parser) parseSelectColumn() SelectColumn {
	var col SelectColumn

	switch p.cur.Kind {
	case COUNT, SUM, AVG, MIN, MAX:
		col.Aggregate = aggregateName(p.cur.Kind)
		p.advance()
		p.expect(LPAREN, "(")
		if p.cur.Kind == STAR {
			col.Column = "*"
			p.advance()
		} else if p.cur.Kind == IDENT {
			col.Column = p.cur.Literal
			p.advance()
		}
		p.expect(RPAREN, ")")
	case STAR:
		col.Column = "*"
		p.advance()
	default:
		if p.cur.Kind == IDENT {
			col.Column = p.cur.Literal
			p.advance()
		} else {
			p.addError("expected column name, got " + p.cur.Literal)
			p.advance()
		}
	}

	if p.cur.Kind == AS {
		p.advance()
		if p.cur.Kind == IDENT {
			col.Alias = p.cur.Literal
			p.advance()
		}
	}

	return col
}

func aggregateName(k TokenKind) string {
	switch k {
	case COUNT:
		return "COUNT"
	case SUM:
		return "SUM"
	case AVG:
		return "AVG"
	case MIN:
		return "MIN"
	case MAX:
		return "MAX"
	default:
		return ""
	}
}

// --- INSERT ---

func (p *Parser) parseInsert() Statement {
	p.advance() // INSERT
	if !p.expect(INTO, "INTO") {
		return p.recover()
	}

	stmt := &InsertStmt{}
	if p.cur.Kind != IDENT {
		p.addError("expected table name after INTO")
		return p.recover()
	}
	stmt.Table = p.cur.Literal
	p.advance()

	if p.cur.Kind == LPAREN {
		p.advance()
		for p.cur.Kind == IDENT {
			stmt.Columns = append(stmt.Columns, p.cur.Literal)
			p.advance()
			if p.cur.Kind == COMMA {
				p.advance()
			}
		}
		p.expect(RPAREN, ")")
	}

	if !p.expect(VALUES, "VALUES") {
		return p.recover()
	}
	p.expect(LPAREN, "(")
	for p.cur.Kind != RPAREN && p.cur.Kind != EOF {
		stmt.Values = append(stmt.Values, p.parsePrimary())
		if p.cur.Kind == COMMA {
			p.advance()
		}
	}
	p.expect(RPAREN, ")")

	return stmt
}

// --- UPDATE ---

func (p *Parser) parseUpdate() Statement {
	p.advance() // UPDATE

	stmt := &UpdateStmt{Sets: make(map[string]Expr)}
	if p.cur.Kind != IDENT {
		p.addError("expected table name after UPDATE")
		return p.recover()
	}
	stmt.Table = p.cur.Literal
	p.advance()

	if !p.expect(SET, "SET") {
		return p.recover()
	}

	for {
		if p.cur.Kind != IDENT {
			p.addError("expected column name in SET clause")
			break
		}
		col := p.cur.Literal
		p.advance()
		p.expect(EQ, "=")
		stmt.Sets[col] = p.parsePrimary()

		if p.cur.Kind != COMMA {
			break
		}
		p.advance()
	}

	if p.cur.Kind == WHERE {
		p.advance()
		stmt.Where = p.parseExpr()
	}

	return stmt
}

// --- DELETE ---

func (p *Parser) parseDelete() Statement {
	p.advance() // DELETE
	if !p.expect(FROM, "FROM") {
		return p.recover()
	}

	stmt := &DeleteStmt{}
	if p.cur.Kind != IDENT {
		p.addError("expected table name after FROM")
		return p.recover()
	}
	stmt.Table = p.cur.Literal
	p.advance()

	if p.cur.Kind == WHERE {
		p.advance()
		stmt.Where = p.parseExpr()
	}

	return stmt
}

// --- DDL ---

func (p *Parser) parseCreateTable() Statement {
	p.advance() // CREATE
	if !p.expect(TABLE, "TABLE") {
		return p.recover()
	}

	stmt := &CreateTableStmt{}
	if p.cur.Kind != IDENT {
		p.addError("expected table name after CREATE TABLE")
		return p.recover()
	}
	stmt.Table = p.cur.Literal
	p.advance()

	p.expect(LPAREN, "(")
	for p.cur.Kind != RPAREN && p.cur.Kind != EOF {
		col := ColumnDef{}
		if p.cur.Kind != IDENT {
			p.addError("expected column name in CREATE TABLE")
			break
		}
		col.Name = p.cur.Literal
		p.advance()

		if p.cur.Kind == IDENT {
			col.Type = p.cur.Literal
			p.advance()
		}

		for p.cur.Kind == PRIMARY || p.cur.Kind == UNIQUE || p.cur.Kind == KEY {
			if p.cur.Kind == PRIMARY {
				col.Primary = true
			}
			if p.cur.Kind == UNIQUE {
				col.Unique = true
			}
			p.advance()
		}

		stmt.Columns = append(stmt.Columns, col)
		if p.cur.Kind == COMMA {
			p.advance()
		}
	}
	p.expect(RPAREN, ")")

	for {
		if p.cur.Kind == ENCRYPTED {
			stmt.Encrypted = true
			p.advance()
			continue
		}
		if p.cur.Kind == STORAGE {
			p.advance()
			if !p.expect(EQ, "=") {
				break
			}
			if p.cur.Kind != IDENT {
				p.addError("expected storage engine tag after STORAGE =")
				break
			}
			stmt.Storage = p.cur.Literal
			p.advance()
			continue
		}
		break
	}

	return stmt
}

func (p *Parser) parseDropTable() Statement {
	p.advance() // DROP
	if !p.expect(TABLE, "TABLE") {
		return p.recover()
	}

	if p.cur.Kind != IDENT {
		p.addError("expected table name after DROP TABLE")
		return p.recover()
	}
	stmt := &DropTableStmt{Table: p.cur.Literal}
	p.advance()
	return stmt
}

func (p *Parser) parsePragma() Statement {
	p.advance() // PRAGMA
	if p.cur.Kind != IDENT {
		p.addError("expected pragma name")
		return p.recover()
	}
	stmt := &PragmaStmt{Name: p.cur.Literal}
	p.advance()

	if p.cur.Kind == LPAREN {
		p.advance()
		if p.cur.Kind == IDENT || p.cur.Kind == STRING || p.cur.Kind == NUMBER {
			stmt.Arg = p.cur.Literal
			p.advance()
		}
		p.expect(RPAREN, ")")
	} else if p.cur.Kind == EQ {
		p.advance()
		if p.cur.Kind == IDENT || p.cur.Kind == STRING || p.cur.Kind == NUMBER {
			stmt.Arg = p.cur.Literal
			p.advance()
		}
	}

	return stmt
}

func (p *Parser) parseVacuum() Statement {
	p.advance() // VACUUM
	stmt := &VacuumStmt{}
	if p.cur.Kind == IDENT {
		stmt.Table = p.cur.Literal
		p.advance()
	}
	return stmt
}

// --- Expressions ---
//
// Precedence, low to high: OR, AND, comparison.

func (p *Parser) parseExpr() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	for p.cur.Kind == OR {
		op := p.cur.Kind
		p.advance()
		right := p.parseAnd()
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseComparison()
	for p.cur.Kind == AND {
		op := p.cur.Kind
		p.advance()
		right := p.parseComparison()
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseComparison() Expr {
	left := p.parsePrimary()
	switch p.cur.Kind {
	case EQ, NEQ, LT, LTE, GT, GTE:
		op := p.cur.Kind
		p.advance()
		right := p.parsePrimary()
		return &BinaryExpr{Left: left, Op: op, Right: right}
	case IN:
		return p.parseIn(left, false)
	case NOT:
		p.advance()
		if p.cur.Kind != IN {
			p.addError("expected IN after NOT")
			return left
		}
		return p.parseIn(left, true)
	}
	return left
}

// parseIn consumes `IN (v1, v2, ...)` or `IN (SELECT ...)`, the IN token
// itself still current when called.
func (p *Parser) parseIn(left Expr, not bool) Expr {
	p.advance() // IN
	in := &InExpr{Left: left, Not: not}
	p.expect(LPAREN, "(")
	if p.cur.Kind == SELECT {
		sub := p.parseSelect()
		if ss, ok := sub.(*SelectStmt); ok {
			in.Sub = ss
		}
	} else {
		for p.cur.Kind != RPAREN && p.cur.Kind != EOF {
			in.Values = append(in.Values, p.parsePrimary())
			if p.cur.Kind != COMMA {
				break
			}
			p.advance()
		}
	}
	p.expect(RPAREN, ")")
	return in
}

func (p *Parser) parsePrimary() Expr {
	switch p.cur.Kind {
	case IDENT:
		ref := &ColumnRef{Name: p.cur.Literal}
		p.advance()
		return ref
	case NUMBER:
		lit := p.cur.Literal
		p.advance()
		if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return &Literal{Value: n}
		}
		f, _ := strconv.ParseFloat(lit, 64)
		return &Literal{Value: f}
	case STRING:
		lit := p.cur.Literal
		p.advance()
		return &Literal{Value: lit}
	case TRUE:
		p.advance()
		return &Literal{Value: true}
	case FALSE:
		p.advance()
		return &Literal{Value: false}
	case NULL:
		p.advance()
		return &Literal{Value: nil}
	case COUNT, SUM, AVG, MIN, MAX:
		// An aggregate call (e.g. in HAVING) refers to that aggregate's column
		// of the grouped result row, which is named after the function unless
		// the SELECT list gives it an alias.
		name := aggregateName(p.cur.Kind)
		p.advance()
		p.expect(LPAREN, "(")
		if p.cur.Kind == STAR || p.cur.Kind == IDENT {
			p.advance()
		}
		p.expect(RPAREN, ")")
		return &ColumnRef{Name: name}
	case PARAM:
		p.paramCount++
		ref := &ParamRef{Name: p.cur.Literal, Index: p.paramCount}
		p.advance()
		return ref
	case LPAREN:
		p.advance()
		if p.cur.Kind == SELECT {
			sub := p.parseSelect()
			p.expect(RPAREN, ")")
			if ss, ok := sub.(*SelectStmt); ok {
				return &SubqueryExpr{Query: ss}
			}
			return &Literal{Value: nil}
		}
		inner := p.parseExpr()
		p.expect(RPAREN, ")")
		return inner
	default:
		p.addError("unexpected token in expression: " + p.cur.Literal)
		p.advance()
		return &Literal{Value: nil}
	}
}
