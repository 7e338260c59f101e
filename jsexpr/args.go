// Package jsexpr pulls string arguments out of the small inline scripts that
// server-rendered pages embed in attributes such as ng-init.
//
// The expression is parsed, never executed: the otto parser turns it into an
// AST and only string literal arguments of call expressions are collected.
// Only single-quoted arguments count as tokens.  Pages that do not parse as
// JavaScript fall back to FirstQuoted, the plain split on single quotes.
package jsexpr

import (
	"fmt"
	"strings"

	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/parser"
)

// StringArgs returns, in source order, the string literal arguments of every
// call in expr.  Calls nested in sequences ("a('x'); b('y')"), in the right
// side of assignments, and in argument lists are visited too.
func StringArgs(expr string) ([]string, error) {
	return stringArgs(expr, func(*ast.StringLiteral) bool { return true })
}

// SingleQuotedArgs is StringArgs restricted to literals written with single
// quotes.
func SingleQuotedArgs(expr string) ([]string, error) {
	return stringArgs(expr, func(lit *ast.StringLiteral) bool {
		return strings.HasPrefix(lit.Literal, "'")
	})
}

func stringArgs(expr string, keep func(*ast.StringLiteral) bool) ([]string, error) {
	prog, err := parser.ParseFile(nil, "", expr, 0)
	if err != nil {
		return nil, fmt.Errorf("jsexpr: parse: %w", err)
	}
	var out []string
	for _, stmt := range prog.Body {
		es, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			continue
		}
		out = collect(es.Expression, keep, out)
	}
	return out, nil
}

func collect(expr ast.Expression, keep func(*ast.StringLiteral) bool, out []string) []string {
	switch e := expr.(type) {
	case *ast.CallExpression:
		for _, arg := range e.ArgumentList {
			if lit, ok := arg.(*ast.StringLiteral); ok {
				if keep(lit) {
					out = append(out, lit.Value)
				}
				continue
			}
			out = collect(arg, keep, out)
		}
	case *ast.SequenceExpression:
		for _, sub := range e.Sequence {
			out = collect(sub, keep, out)
		}
	case *ast.AssignExpression:
		out = collect(e.Right, keep, out)
	}
	return out
}

// FirstQuoted returns the text after the first single quote in s, up to the
// next one or the end of s.
func FirstQuoted(s string) (string, bool) {
	parts := strings.Split(s, "'")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// FirstStringArg returns the first single-quoted argument of the calls in
// expr.  Double-quoted arguments are skipped.  When expr is not valid
// JavaScript the answer is FirstQuoted.
func FirstStringArg(expr string) (string, bool) {
	args, err := SingleQuotedArgs(expr)
	if err != nil {
		return FirstQuoted(expr)
	}
	if len(args) == 0 || args[0] == "" {
		return "", false
	}
	return args[0], true
}
