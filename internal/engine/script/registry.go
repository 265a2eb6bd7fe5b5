package script

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/kode4food/lru"

	"github.com/kode4food/paisley/pkg/api"
)

type (
	// Registry manages script environments for different languages
	Registry struct {
		envs map[api.ScriptLanguage]Environment
	}

	// Environment defines the interface for script environments
	Environment interface {
		// Validate checks if a script body is syntactically valid
		Validate(source string) error

		// CompileScript prepares a script body for execution with the
		// given argument names
		CompileScript(script string, argNames []string) (Compiled, error)

		// CompileCondition prepares a boolean expression for evaluation
		// with the given argument names
		CompileCondition(expr string, argNames []string) (Compiled, error)

		// ExecuteScript runs a compiled script against the variables in
		// scope
		ExecuteScript(c Compiled, vars api.Variables) (api.Variables, error)

		// EvaluatePredicate evaluates a compiled condition against the
		// variables in scope
		EvaluatePredicate(c Compiled, vars api.Variables) (bool, error)
	}

	// Compiled represents a compiled script for any supported language
	Compiled any

	compileFunc[T any] func(source string, argNames []string) (T, error)

	compiler[T any] struct {
		cache *lru.Cache[T]
		build compileFunc[T]
	}
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported script language")
)

// NewRegistry creates a script registry with the Ale, JPath, and Lua
// execution environments installed
func NewRegistry() *Registry {
	return &Registry{
		envs: map[api.ScriptLanguage]Environment{
			api.LangAle:   NewAleEnv(),
			api.LangJPath: NewJPathEnv(),
			api.LangLua:   NewLuaEnv(),
		},
	}
}

func (r *Registry) Register(language api.ScriptLanguage, env Environment) {
	r.envs[language] = env
}

// Get returns the script environment for the given language
func (r *Registry) Get(language api.ScriptLanguage) (Environment, error) {
	env, ok := r.envs[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return env, nil
}

// Validate checks that source parses as a script body for the given
// language
func (r *Registry) Validate(language api.ScriptLanguage, source string) error {
	env, err := r.Get(language)
	if err != nil {
		return err
	}
	return env.Validate(source)
}

// ExecuteScript compiles and runs a script config against the variables
// in scope. Argument names come from the config's declared args, falling
// back to the full variable scope
func (r *Registry) ExecuteScript(
	cfg *api.ScriptConfig, vars api.Variables,
) (api.Variables, error) {
	if cfg == nil || cfg.Script == "" {
		return api.Variables{}, nil
	}
	env, err := r.Get(cfg.EffectiveLanguage())
	if err != nil {
		return nil, err
	}
	c, err := env.CompileScript(cfg.Script, cfg.SortedArgNames(vars))
	if err != nil {
		return nil, err
	}
	return env.ExecuteScript(c, vars)
}

// EvaluateCondition compiles and evaluates a condition against the
// variables in scope. A nil or empty condition always passes
func (r *Registry) EvaluateCondition(
	cond *api.Condition, vars api.Variables,
) (bool, error) {
	if cond == nil || cond.Expression == "" {
		return true, nil
	}
	env, err := r.Get(cond.EffectiveLanguage())
	if err != nil {
		return false, err
	}
	c, err := env.CompileCondition(cond.Expression, scopeNames(vars))
	if err != nil {
		return false, err
	}
	return env.EvaluatePredicate(c, vars)
}

func newCompiler[T any](size int, build compileFunc[T]) *compiler[T] {
	return &compiler[T]{
		cache: lru.NewCache[T](size),
		build: build,
	}
}

func (c *compiler[T]) Validate(source string) error {
	_, err := c.compileWith(source, nil)
	return err
}

func (c *compiler[T]) compileWith(
	source string, argNames []string,
) (Compiled, error) {
	if source == "" {
		return nil, nil
	}

	return c.cache.Get(hashScript(source, argNames), func() (T, error) {
		return c.build(source, argNames)
	})
}

func scopeNames(vars api.Variables) []string {
	names := vars.Names()
	res := make([]string, len(names))
	for i, name := range names {
		res[i] = string(name)
	}
	return res
}

func hashScript(source string, argNames []string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(source))

	for _, arg := range argNames {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(arg))
	}

	return hex.EncodeToString(h.Sum(nil))
}
