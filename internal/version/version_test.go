package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, BuildTime)
	assert.NotEmpty(t, GitCommit)
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.True(t, strings.HasPrefix(info.String(), "hotpatch "))
}

func TestGetUsesInjectedVersion(t *testing.T) {
	prev := Version
	Version = "v1.2.3"
	t.Cleanup(func() { Version = prev })

	assert.Equal(t, "v1.2.3", Get().Version)
	assert.Contains(t, Get().String(), "v1.2.3")
}
