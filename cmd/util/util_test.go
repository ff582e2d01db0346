package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/stretchr/testify/assert"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
	assert.Equal(t, int(store.RetCKeyNotFound), ExitCode(store.NewError(store.RetCKeyNotFound, "x")))

	wrapped := fmt.Errorf("lookup: %w", store.NewError(store.RetCIncompleteRange, "range"))
	assert.Equal(t, int(store.RetCIncompleteRange), ExitCode(wrapped))
}
