package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"

	"github.com/kode4food/paisley/pkg/api"
)

type (
	// AleEnv provides an Ale script execution environment
	AleEnv struct {
		*compiler[*CompiledAle]
		env *env.Environment
	}

	// CompiledAle represents a compiled Ale procedure along with the
	// argument names its lambda binds
	CompiledAle struct {
		proc     data.Procedure
		argNames []string
	}
)

const (
	aleCacheSize      = 4096
	aleLambdaTemplate = "(lambda (%s) %s)"
)

var (
	ErrAleBadCompiledType = errors.New("expected compiled ale procedure")
	ErrAleNotProcedure    = errors.New("not a procedure")
	ErrAleCompile         = errors.New("ale compile error")
	ErrAleCall            = errors.New("ale call error")
)

// NewAleEnv creates a new Ale script execution environment with a
// bootstrapped namespace
func NewAleEnv() *AleEnv {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	aleEnv := &AleEnv{env: e}
	aleEnv.compiler = newCompiler(aleCacheSize,
		func(source string, argNames []string) (*CompiledAle, error) {
			return aleEnv.compile(source, argNames)
		},
	)
	return aleEnv
}

// CompileScript compiles an Ale script body with the given argument names
// bound as lambda parameters
func (e *AleEnv) CompileScript(
	script string, argNames []string,
) (Compiled, error) {
	return e.compileWith(script, argNames)
}

// CompileCondition compiles an Ale boolean expression. Expressions and
// script bodies compile identically since the last form is the value
func (e *AleEnv) CompileCondition(
	expr string, argNames []string,
) (Compiled, error) {
	return e.compileWith(expr, argNames)
}

// ExecuteScript calls a compiled Ale procedure with the variables in scope
// and returns the resulting output variables
func (e *AleEnv) ExecuteScript(
	c Compiled, vars api.Variables,
) (api.Variables, error) {
	proc, ok := c.(*CompiledAle)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrAleBadCompiledType, c)
	}

	result, err := proc.call(vars)
	if err != nil {
		return nil, err
	}

	jsonValue := aleToJSON(result)

	m, ok := jsonValue.(map[string]any)
	if !ok {
		return api.Variables{"result": jsonValue}, nil
	}

	res := make(api.Variables, len(m))
	for k, v := range m {
		res[api.Name(k)] = v
	}
	return res, nil
}

// EvaluatePredicate calls a compiled Ale condition with the variables in
// scope. Any result other than false counts as success
func (e *AleEnv) EvaluatePredicate(
	c Compiled, vars api.Variables,
) (bool, error) {
	proc, ok := c.(*CompiledAle)
	if !ok {
		return false, fmt.Errorf("%w, got %T", ErrAleBadCompiledType, c)
	}

	result, err := proc.call(vars)
	if err != nil {
		return false, err
	}
	return result != data.False, nil
}

func (e *AleEnv) compile(
	source string, argNames []string,
) (*CompiledAle, error) {
	src := fmt.Sprintf(
		aleLambdaTemplate, strings.Join(argNames, " "), source,
	)

	return catchPanic(ErrAleCompile,
		func() (*CompiledAle, error) {
			ns := e.env.GetAnonymous()
			res, err := eval.String(ns, data.String(src))
			if err != nil {
				return nil, err
			}

			proc, ok := res.(data.Procedure)
			if !ok {
				return nil, fmt.Errorf("%w, got: %T", ErrAleNotProcedure, res)
			}
			return &CompiledAle{proc: proc, argNames: argNames}, nil
		},
	)
}

func (c *CompiledAle) call(vars api.Variables) (ale.Value, error) {
	args := make(data.Vector, 0, len(c.argNames))
	for _, name := range c.argNames {
		args = append(args, aleArgValue(vars, name))
	}

	return catchPanic(ErrAleCall,
		func() (ale.Value, error) {
			return c.proc.Call(args...), nil
		},
	)
}

func aleArgValue(vars api.Variables, argName string) ale.Value {
	value, ok := vars[api.Name(argName)]
	if !ok {
		return data.Null
	}
	return jsonToAle(value)
}

func jsonToAle(value any) ale.Value {
	switch v := value.(type) {
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case int:
		return data.Integer(v)
	case int64:
		return data.Integer(v)
	case float64:
		return data.Float(v)
	case []any:
		return jsonArrayToAle(v)
	case map[string]any:
		return jsonMapToAle(v)
	case nil:
		return data.Null
	default:
		return data.String(fmt.Sprintf("%v", v))
	}
}

func jsonArrayToAle(arr []any) data.Vector {
	vec := make(data.Vector, len(arr))
	for i, item := range arr {
		vec[i] = jsonToAle(item)
	}
	return vec
}

func jsonMapToAle(m map[string]any) *data.Object {
	obj := data.NewObject()
	for k, val := range m {
		pair := data.NewCons(data.Keyword(k), jsonToAle(val))
		obj = obj.Put(pair).(*data.Object)
	}
	return obj
}

func aleToJSON(value ale.Value) any {
	switch v := value.(type) {
	case data.Bool:
		return bool(v)
	case data.Keyword:
		return string(v)
	case data.Integer:
		return int(v)
	case data.Float:
		return float64(v)
	case data.Vector:
		return aleVectorToJSON(v)
	case *data.List:
		return aleListToJSON(v)
	case *data.Object:
		return aleObjectToJSON(v)
	default:
		return aleDefaultToJSON(value, v)
	}
}

func aleVectorToJSON(v data.Vector) []any {
	result := make([]any, len(v))
	for i, item := range v {
		result[i] = aleToJSON(item)
	}
	return result
}

func aleListToJSON(list *data.List) []any {
	var result []any
	for l := list; !l.IsEmpty(); {
		head, tail, ok := l.Split()
		if !ok {
			break
		}
		result = append(result, aleToJSON(head))
		l = tail.(*data.List)
	}
	return result
}

func aleObjectToJSON(obj *data.Object) map[string]any {
	result := map[string]any{}
	for _, pair := range obj.Pairs() {
		keyStr := fmt.Sprintf("%v", aleToJSON(pair.Car()))
		result[keyStr] = aleToJSON(pair.Cdr())
	}
	return result
}

func aleDefaultToJSON(value ale.Value, v any) any {
	if value == data.Null {
		return nil
	}
	return fmt.Sprintf("%v", v)
}

func catchPanic[T any](baseErr error, fn func() (T, error)) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if ok {
			err = e
			return
		}
		err = fmt.Errorf("%w: %v", baseErr, r)
	}()
	return fn()
}
