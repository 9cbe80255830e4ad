package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_PositionalArgs(t *testing.T) {
	out := Render("resolve($0, $1)", []string{"comm", "tag"}, "", "", "")
	assert.Equal(t, "resolve(comm, tag)", out)
}

func TestRender_ResultLengthModule(t *testing.T) {
	out := Render("$M->invoke($0) -> $R (len=$L)", []string{"x"}, "result", "n", "mod1")
	assert.Equal(t, "mod1->invoke(x) -> result (len=n)", out)
}

func TestRender_DoubleDigitIndexNotConfusedWithSingleDigit(t *testing.T) {
	args := make([]string, 11)
	for i := range args {
		args[i] = string(rune('a' + i))
	}
	out := Render("$1 $10", args, "", "", "")
	assert.Equal(t, "b k", out)
}

func TestRender_OutOfRangeIndexLeftUntouched(t *testing.T) {
	out := Render("$5", []string{"a"}, "", "", "")
	assert.Equal(t, "$5", out)
}

func TestRender_EmptyTemplate(t *testing.T) {
	assert.Equal(t, "", Render("", nil, "r", "l", "m"))
}
