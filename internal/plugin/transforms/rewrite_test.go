package transforms

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteFirstMatchOnly(t *testing.T) {
	fn := Rewrite("color", regexp.MustCompile(`red`), "blue", false, nil)
	out, ok, err := fn(context.Background(), "red red")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "blue red", out)
}

func TestRewriteAll(t *testing.T) {
	fn := Rewrite("color", regexp.MustCompile(`red`), "blue", true, nil)
	out, ok, err := fn(context.Background(), "red red")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "blue blue", out)
}

func TestRewriteExpandsGroups(t *testing.T) {
	fn := Rewrite("swap", regexp.MustCompile(`(\w+)=(\w+)`), "$2=$1", false, nil)
	out, ok, _ := fn(context.Background(), "a=b; c=d")
	assert.True(t, ok)
	assert.Equal(t, "b=a; c=d", out)
}

func TestRewriteMissingAnchorIsIdentity(t *testing.T) {
	fn := Rewrite("missing", regexp.MustCompile(`nowhere`), "x", true, nil)
	out, ok, err := fn(context.Background(), "input text")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "input text", out)
}

func TestRewriteReplacementEqualToMatchIsNoop(t *testing.T) {
	fn := Rewrite("same", regexp.MustCompile(`abc`), "abc", false, nil)
	_, ok, _ := fn(context.Background(), "xabcx")
	assert.False(t, ok)
}
