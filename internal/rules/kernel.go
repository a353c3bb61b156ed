// Package rules evaluates contradiction rules over blackboard signals with a
// Datalog engine. Signals are asserted as facts, the rule program derives
// contradiction atoms, and the contradiction wave turns those into
// validation.* signals.
package rules

import (
	"fmt"
	"strings"
	"sync"

	"pixelsense/internal/logging"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// Fact is a single logical fact asserted to or derived by the kernel.
// String args are Mangle strings unless they start with "/" (name constants);
// numeric args must be int64 (the contradiction wave scales [0,1] ratio
// floats to 0-100 and truncates sharpness to an integer before assertion).
type Fact struct {
	Predicate string
	Args      []interface{}
}

// ToAtom converts the fact to a Mangle AST atom.
func (f Fact) ToAtom() (ast.Atom, error) {
	var terms []ast.BaseTerm
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				c, err := ast.Name(v)
				if err != nil {
					return ast.Atom{}, err
				}
				terms = append(terms, c)
			} else {
				terms = append(terms, ast.String(v))
			}
		case int:
			terms = append(terms, ast.Number(int64(v)))
		case int64:
			terms = append(terms, ast.Number(v))
		case bool:
			if v {
				terms = append(terms, ast.TrueConstant)
			} else {
				terms = append(terms, ast.FalseConstant)
			}
		default:
			terms = append(terms, ast.String(fmt.Sprintf("%v", v)))
		}
	}
	return ast.NewAtom(f.Predicate, terms...), nil
}

func atomToFact(a ast.Atom) Fact {
	args := make([]interface{}, len(a.Args))
	for i, term := range a.Args {
		args[i] = baseTermToValue(term)
	}
	return Fact{Predicate: a.Predicate.Symbol, Args: args}
}

func baseTermToValue(term ast.BaseTerm) interface{} {
	switch t := term.(type) {
	case ast.Constant:
		switch t.Type {
		case ast.NameType:
			return t.Symbol
		case ast.StringType:
			return t.Symbol
		case ast.NumberType:
			return t.NumValue
		default:
			return t.Symbol
		}
	default:
		return fmt.Sprintf("%v", term)
	}
}

// Kernel wraps the Mangle engine around a fixed rule program. The program is
// parsed and analyzed once; each Evaluate runs on a fresh fact store, so
// concurrent analyses never see each other's facts.
type Kernel struct {
	mu          sync.RWMutex
	programInfo *analysis.ProgramInfo
}

// derivedFactLimit caps fixpoint output as a guard against rule explosions.
const derivedFactLimit = 100000

// NewKernel parses and analyzes the rule program. Pass extra rule sources to
// extend the built-in contradiction rules.
func NewKernel(extraRules ...string) (*Kernel, error) {
	program := DefaultContradictionRules
	for _, r := range extraRules {
		program += "\n" + r
	}

	parsed, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule program: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(parsed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze rule program: %w", err)
	}
	logging.Get(logging.CategoryRules).Debug("rule program ready: %d predicates", len(programInfo.Decls))
	return &Kernel{programInfo: programInfo}, nil
}

// Evaluate asserts the given facts, runs the program to fixpoint, and
// returns all derived facts for the named predicate.
func (k *Kernel) Evaluate(facts []Fact, predicate string) ([]Fact, error) {
	k.mu.RLock()
	info := k.programInfo
	k.mu.RUnlock()

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range facts {
		atom, err := f.ToAtom()
		if err != nil {
			return nil, fmt.Errorf("failed to convert fact %s: %w", f.Predicate, err)
		}
		store.Add(atom)
	}

	if _, err := engine.EvalProgramWithStats(info, store, engine.WithCreatedFactLimit(derivedFactLimit)); err != nil {
		return nil, fmt.Errorf("failed to evaluate rules: %w", err)
	}

	var results []Fact
	for pred := range info.Decls {
		if pred.Symbol != predicate {
			continue
		}
		store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
			results = append(results, atomToFact(a))
			return nil
		})
		break
	}
	logging.Get(logging.CategoryRules).Debug("evaluated %d facts -> %d %s", len(facts), len(results), predicate)
	return results, nil
}

// ScaleFloat converts a [0,1] float signal to the 0-100 integer scale the
// rule comparisons use (the engine's comparison builtins are integer-typed).
func ScaleFloat(v float64) int64 {
	if v < 0 {
		return 0
	}
	return int64(v * 100)
}
