package script_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/paisley/internal/engine/script"
	"github.com/kode4food/paisley/pkg/api"
)

func TestJPathCompileAndValidate(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileCondition("$.foo", nil)
	assert.NoError(t, err)
	assert.NotNil(t, compiled)

	err = env.Validate("$.foo")
	assert.NoError(t, err)
}

func TestJPathCompileInvalid(t *testing.T) {
	env := script.NewJPathEnv()

	_, err := env.CompileCondition("$..[", nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, script.ErrJPathCompile)
}

func TestJPathEvaluatePredicate(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileCondition("$.flag", nil)
	assert.NoError(t, err)
	assert.NotNil(t, compiled)

	passed, err := env.EvaluatePredicate(compiled, api.Variables{
		"flag": true,
	})
	assert.NoError(t, err)
	assert.True(t, passed)

	passed, err = env.EvaluatePredicate(compiled, api.Variables{})
	assert.NoError(t, err)
	assert.False(t, passed)
}

func TestJPathEvaluatePredicateTopLevelFilter(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileCondition(
		`$.product_info.name == "Professional Laptop"`, nil,
	)
	assert.NoError(t, err)
	assert.NotNil(t, compiled)

	passed, err := env.EvaluatePredicate(compiled, api.Variables{
		"product_info": map[string]any{
			"name": "Professional Laptop",
			"sku":  "123",
		},
	})
	assert.NoError(t, err)
	assert.True(t, passed)

	passed, err = env.EvaluatePredicate(compiled, api.Variables{
		"product_info": map[string]any{
			"name": "Basic Laptop",
			"sku":  "123",
		},
	})
	assert.NoError(t, err)
	assert.False(t, passed)
}

func TestJPathEvaluatePredicateNullMatch(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileCondition("$.flag", nil)
	assert.NoError(t, err)

	passed, err := env.EvaluatePredicate(compiled, api.Variables{
		"flag": nil,
	})
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestJPathExecuteScriptSingleMatch(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileScript("$.foo", nil)
	assert.NoError(t, err)

	outputs, err := env.ExecuteScript(compiled, api.Variables{
		"input": map[string]any{"foo": "bar"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "bar", outputs["value"])
}

func TestJPathExecuteScriptMultiMatch(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileScript("$..book", nil)
	assert.NoError(t, err)

	outputs, err := env.ExecuteScript(compiled, api.Variables{
		"output": map[string]any{
			"books": []any{
				map[string]any{"book": "A"},
				map[string]any{"book": "B"},
			},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, []any{"A", "B"}, outputs["value"])
}

func TestJPathExecuteScriptNoMatch(t *testing.T) {
	env := script.NewJPathEnv()

	compiled, err := env.CompileScript("$.missing", nil)
	assert.NoError(t, err)

	outputs, err := env.ExecuteScript(compiled, api.Variables{
		"input": map[string]any{"foo": "bar"},
	})
	assert.ErrorIs(t, err, script.ErrJPathNoMatch)
	assert.Nil(t, outputs)
}
