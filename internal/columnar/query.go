package columnar

import (
	"strconv"
	"strings"

	"github.com/cuemby/wal-cas/internal/errs"
)

// parsedQuery is the result of parsing the small read-only subset of SQL
// the Bridge's query() operation supports: "SELECT col, col FROM alias
// [WHERE col OP literal]". This is a minimal recursive-descent parser
// sufficient for the read-only contract rather than a general engine.
type parsedQuery struct {
	Columns []string
	From    string
	Where   *Filter
}

// Query evaluates a read-only SQL-subset query over the one previously
// stored dataset named by the FROM alias, materializing it with
// projection pushdown. A query reads exactly one dataset; joins or other
// references to several aliases are not supported.
func (b *Bridge) Query(sql string, cidAliases map[string]string) (*Table, error) {
	pq, err := parseQuery(sql)
	if err != nil {
		return nil, err
	}
	cid, ok := cidAliases[pq.From]
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "unknown alias %q in FROM clause", pq.From)
	}

	var filters []Filter
	if pq.Where != nil {
		filters = append(filters, *pq.Where)
	}

	columns := pq.Columns
	if len(columns) == 1 && columns[0] == "*" {
		columns = nil
	}

	// The filter column must be part of the read set even when the SELECT
	// list does not name it; project back down afterwards.
	readColumns := columns
	if len(columns) > 0 && pq.Where != nil && !contains(columns, pq.Where.Column) {
		readColumns = append(append([]string{}, columns...), pq.Where.Column)
	}

	result, err := b.Retrieve(cid, readColumns, filters, true)
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 && len(readColumns) != len(columns) {
		return result.Table.Project(columns)
	}
	return result.Table, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func parseQuery(sql string) (*parsedQuery, error) {
	tokens := tokenizeSQL(sql)
	p := &sqlParser{tokens: tokens}
	return p.parseSelect()
}

func tokenizeSQL(sql string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'':
			flush()
			j := i + 1
			var lit strings.Builder
			for j < len(runes) && runes[j] != '\'' {
				lit.WriteRune(runes[j])
				j++
			}
			tokens = append(tokens, "'"+lit.String()+"'")
			i = j
		case r == ',' || r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case r == '!' && i+1 < len(runes) && runes[i+1] == '=':
			flush()
			tokens = append(tokens, "!=")
			i++
		case r == '<' || r == '>':
			flush()
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, string(r)+"=")
				i++
			} else {
				tokens = append(tokens, string(r))
			}
		case r == '=':
			flush()
			tokens = append(tokens, "=")
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type sqlParser struct {
	tokens []string
	pos    int
}

func (p *sqlParser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *sqlParser) next() (string, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *sqlParser) expectKeyword(kw string) error {
	t, ok := p.next()
	if !ok || !strings.EqualFold(t, kw) {
		return errs.Newf(errs.InvalidArgument, "expected %q, got %q", kw, t)
	}
	return nil
}

func (p *sqlParser) parseSelect() (*parsedQuery, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	var columns []string
	for {
		t, ok := p.next()
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "unexpected end of query after SELECT")
		}
		columns = append(columns, t)
		sep, ok := p.peek()
		if ok && sep == "," {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, ok := p.next()
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "expected alias after FROM")
	}

	pq := &parsedQuery{Columns: columns, From: from}

	if t, ok := p.peek(); ok && strings.EqualFold(t, "WHERE") {
		p.pos++
		col, ok := p.next()
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "expected column after WHERE")
		}
		opTok, ok := p.next()
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "expected operator in WHERE clause")
		}
		op, ok := parseOp(opTok)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "unknown operator %q", opTok)
		}
		litTok, ok := p.next()
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "expected literal in WHERE clause")
		}
		pq.Where = &Filter{Column: col, Op: op, Value: parseLiteral(litTok)}
	}
	return pq, nil
}

func parseOp(tok string) (FilterOp, bool) {
	switch tok {
	case "=":
		return OpEQ, true
	case "!=", "<>":
		return OpNE, true
	case "<":
		return OpLT, true
	case "<=":
		return OpLE, true
	case ">":
		return OpGT, true
	case ">=":
		return OpGE, true
	default:
		return "", false
	}
}

func parseLiteral(tok string) interface{} {
	if strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") {
		return strings.Trim(tok, "'")
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	if tok == "true" || tok == "false" {
		return tok == "true"
	}
	return tok
}
