package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("registry ", 20)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestSplitEndpoints(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitEndpoints(" a:1, ,b:2,"))
	assert.Nil(t, splitEndpoints(""))
}
