package errd

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/wsengine/websocket/internal/test/assert"
)

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()

		var err error
		Wrap(&err, "failed to %v", "read")
		assert.Success(t, err)
	})

	t.Run("message", func(t *testing.T) {
		t.Parallel()

		err := io.ErrUnexpectedEOF
		Wrap(&err, "failed to %v", "read")
		assert.Equal(t, "error string", "failed to read: unexpected EOF", err.Error())
		assert.ErrorIs(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("frames", func(t *testing.T) {
		t.Parallel()

		err := errors.New("boom")
		Wrap(&err, "outer")
		assert.Contains(t, fmt.Sprintf("%+v", err), "wrap_test.go")
	})
}
