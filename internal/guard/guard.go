// Package guard compiles user-written validity rules into
// [corrupt.Validator] functions.
//
// A rule is an expr-lang expression evaluated once per candidate commit with
// two variables:
//
//	b  the candidate byte value (0-255)
//	i  the index inside the entry buffer
//
// and the helpers:
//
//	between(x, lo, hi)  lo <= x && x <= hi
//	printable(x)        x is printable ASCII (0x20-0x7E)
//
// Examples:
//
//	b != 0
//	!between(i, 0, 0x1F) && b < 0x80
//	printable(b) || i % 4 == 3
package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/calvinalkan/mangle/internal/corrupt"
)

// ErrRule wraps every compile failure.
var ErrRule = errors.New("invalid validity rule")

type env struct {
	B int `expr:"b"`
	I int `expr:"i"`
}

func options() []expr.Option {
	return []expr.Option{
		expr.Env(env{}),
		expr.AsBool(),
		expr.Function("between", func(params ...any) (any, error) {
			x, lo, hi := params[0].(int), params[1].(int), params[2].(int)

			return lo <= x && x <= hi, nil
		}, new(func(int, int, int) bool)),
		expr.Function("printable", func(params ...any) (any, error) {
			x := params[0].(int)

			return x >= 0x20 && x <= 0x7E, nil
		}, new(func(int) bool)),
	}
}

// Rule is a compiled validity rule.
type Rule struct {
	src     string
	program *vm.Program
	machine vm.VM
}

// Compile parses src. The expression must produce a bool.
func Compile(src string) (*Rule, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrRule)
	}

	program, err := expr.Compile(src, options()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRule, err)
	}

	return &Rule{src: src, program: program}, nil
}

// String returns the trimmed source.
func (r *Rule) String() string {
	return r.src
}

// Eval reports whether candidate may be committed at index.
func (r *Rule) Eval(candidate byte, index int) (bool, error) {
	out, err := r.machine.Run(r.program, env{B: int(candidate), I: index})
	if err != nil {
		return false, err
	}

	ok, _ := out.(bool)

	return ok, nil
}

// Validator adapts the rule to the engine. A rule that fails at run time
// rejects the commit.
func (r *Rule) Validator() corrupt.Validator {
	return func(candidate byte, index int) bool {
		ok, err := r.Eval(candidate, index)

		return err == nil && ok
	}
}

// Validator compiles src and returns its validator. An empty or blank src
// yields [corrupt.AlwaysValid].
func Validator(src string) (corrupt.Validator, error) {
	if strings.TrimSpace(src) == "" {
		return corrupt.AlwaysValid, nil
	}

	rule, err := Compile(src)
	if err != nil {
		return nil, err
	}

	return rule.Validator(), nil
}
