package engine

import (
	"fmt"

	"github.com/bobboyms/dbcore/pkg/sql"
)

// bindParams rewrites every ParamRef in stmt into a Literal drawn from
// positional/named, returning a new statement tree: the original (cached in
// db.plans) is never mutated, since two concurrent Executes of the same
// prepared text may bind different argument values to it.
func bindParams(stmt sql.Statement, positional []interface{}, named map[string]interface{}) (sql.Statement, error) {
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return bindSelect(s, positional, named)
	case *sql.InsertStmt:
		cp := *s
		values := make([]sql.Expr, len(s.Values))
		for i, v := range s.Values {
			nv, err := substituteParams(v, positional, named)
			if err != nil {
				return nil, err
			}
			values[i] = nv
		}
		cp.Values = values
		return &cp, nil
	case *sql.UpdateStmt:
		cp := *s
		sets := make(map[string]sql.Expr, len(s.Sets))
		for col, v := range s.Sets {
			nv, err := substituteParams(v, positional, named)
			if err != nil {
				return nil, err
			}
			sets[col] = nv
		}
		cp.Sets = sets
		where, err := substituteParams(s.Where, positional, named)
		if err != nil {
			return nil, err
		}
		cp.Where = where
		return &cp, nil
	case *sql.DeleteStmt:
		cp := *s
		where, err := substituteParams(s.Where, positional, named)
		if err != nil {
			return nil, err
		}
		cp.Where = where
		return &cp, nil
	default:
		return stmt, nil
	}
}

func bindSelect(s *sql.SelectStmt, positional []interface{}, named map[string]interface{}) (*sql.SelectStmt, error) {
	if s == nil {
		return nil, nil
	}
	cp := *s
	var err error

	cp.Where, err = substituteParams(s.Where, positional, named)
	if err != nil {
		return nil, err
	}
	cp.Having, err = substituteParams(s.Having, positional, named)
	if err != nil {
		return nil, err
	}
	if len(s.Joins) > 0 {
		cp.Joins = make([]sql.Join, len(s.Joins))
		for i, j := range s.Joins {
			nj := j
			nj.On, err = substituteParams(j.On, positional, named)
			if err != nil {
				return nil, err
			}
			cp.Joins[i] = nj
		}
	}
	cp.FromSub, err = bindSelect(s.FromSub, positional, named)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// substituteParams rewrites e's ParamRef nodes into Literals, recursing
// through the BinaryExpr/InExpr/SubqueryExpr shapes a WHERE/ON/HAVING/SET
// expression can take. ColumnRef and Literal pass through unchanged since
// they carry no parameters.
func substituteParams(e sql.Expr, positional []interface{}, named map[string]interface{}) (sql.Expr, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil
	case *sql.ParamRef:
		if v.Name != "" {
			val, ok := named[v.Name]
			if !ok {
				return nil, fmt.Errorf("engine: missing value for named parameter @%s", v.Name)
			}
			return &sql.Literal{Value: val}, nil
		}
		if v.Index < 1 || v.Index > len(positional) {
			return nil, fmt.Errorf("engine: missing value for positional parameter %d", v.Index)
		}
		return &sql.Literal{Value: positional[v.Index-1]}, nil
	case *sql.BinaryExpr:
		left, err := substituteParams(v.Left, positional, named)
		if err != nil {
			return nil, err
		}
		right, err := substituteParams(v.Right, positional, named)
		if err != nil {
			return nil, err
		}
		return &sql.BinaryExpr{Left: left, Op: v.Op, Right: right}, nil
	case *sql.InExpr:
		left, err := substituteParams(v.Left, positional, named)
		if err != nil {
			return nil, err
		}
		values := make([]sql.Expr, len(v.Values))
		for i, val := range v.Values {
			nv, err := substituteParams(val, positional, named)
			if err != nil {
				return nil, err
			}
			values[i] = nv
		}
		sub, err := bindSelect(v.Sub, positional, named)
		if err != nil {
			return nil, err
		}
		return &sql.InExpr{Left: left, Not: v.Not, Values: values, Sub: sub}, nil
	case *sql.SubqueryExpr:
		sub, err := bindSelect(v.Query, positional, named)
		if err != nil {
			return nil, err
		}
		return &sql.SubqueryExpr{Query: sub}, nil
	default:
		return e, nil
	}
}
