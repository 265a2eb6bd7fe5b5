package script

import (
	"errors"
	"fmt"

	"github.com/kode4food/jpath"

	"github.com/kode4food/paisley/pkg/api"
)

// JPathEnv provides JPath predicate evaluation and value extraction
type JPathEnv struct {
	*compiler[jpath.Path]
}

const jpathCacheSize = 10240

var (
	ErrJPathBadCompiledType = errors.New("expected jpath path")
	ErrJPathCompile         = errors.New("jpath compile error")
	ErrJPathNoMatch         = errors.New("jpath matched no values")
)

// NewJPathEnv creates a JPath evaluation environment
func NewJPathEnv() *JPathEnv {
	env := &JPathEnv{}
	env.compiler = newCompiler(jpathCacheSize,
		func(source string, _ []string) (jpath.Path, error) {
			return env.compile(source)
		},
	)
	return env
}

// CompileScript compiles a JPath expression. Argument names play no part
// since paths address the document directly
func (e *JPathEnv) CompileScript(
	script string, _ []string,
) (Compiled, error) {
	return e.compileWith(script, nil)
}

// CompileCondition compiles a JPath expression for predicate evaluation
func (e *JPathEnv) CompileCondition(
	expr string, _ []string,
) (Compiled, error) {
	return e.compileWith(expr, nil)
}

// ExecuteScript applies the compiled path to each bound variable in name
// order and collects every match. A single match binds as a scalar value
// while multiple matches bind as a slice
func (e *JPathEnv) ExecuteScript(
	c Compiled, vars api.Variables,
) (api.Variables, error) {
	path, ok := c.(jpath.Path)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrJPathBadCompiledType, c)
	}

	var matches []any
	for _, name := range vars.Names() {
		matches = append(matches, path(normalizeDoc(vars[name]))...)
	}

	switch len(matches) {
	case 0:
		return nil, ErrJPathNoMatch
	case 1:
		return api.Variables{"value": matches[0]}, nil
	default:
		return api.Variables{"value": matches}, nil
	}
}

// EvaluatePredicate applies the compiled path to the variables in scope and
// treats any match as predicate success, including explicit null matches
func (e *JPathEnv) EvaluatePredicate(
	c Compiled, vars api.Variables,
) (bool, error) {
	path, ok := c.(jpath.Path)
	if !ok {
		return false, fmt.Errorf("%w, got %T", ErrJPathBadCompiledType, c)
	}

	matches := path(normalizeDoc(vars))
	return len(matches) > 0, nil
}

func (e *JPathEnv) compile(source string) (jpath.Path, error) {
	parsed, err := jpath.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJPathCompile, source)
	}

	compiled, err := jpath.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJPathCompile, source)
	}
	return compiled, nil
}

func normalizeDoc(value any) any {
	switch v := value.(type) {
	case api.Variables:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			out[string(key)] = normalizeDoc(elem)
		}
		return out
	case map[api.Name]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			out[string(key)] = normalizeDoc(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			out[key] = normalizeDoc(elem)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for idx, elem := range v {
			out[idx] = normalizeDoc(elem)
		}
		return out
	default:
		return value
	}
}
