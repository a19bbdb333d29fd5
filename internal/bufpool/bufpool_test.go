package bufpool

import (
	"strings"
	"testing"

	"github.com/wsengine/websocket/internal/test/assert"
)

func TestBuffer(t *testing.T) {
	t.Parallel()

	b := Get()
	b.WriteString("hello")
	Put(b)

	b = Get()
	assert.Equal(t, "len", 0, b.Len())
	Put(b)
}

func TestReader(t *testing.T) {
	t.Parallel()

	br := GetReader(strings.NewReader("frame"))
	s, err := br.ReadString('m')
	assert.Success(t, err)
	assert.Equal(t, "read", "fram", s)
	PutReader(br)

	br = GetReader(strings.NewReader("x"))
	defer PutReader(br)
	s, err = br.ReadString('x')
	assert.Success(t, err)
	assert.Equal(t, "read", "x", s)
}
