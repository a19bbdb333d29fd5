package msgqueue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/wsengine/websocket/internal/test/assert"
)

func TestQueueOrder(t *testing.T) {
	t.Parallel()

	q := New[int]()
	for i := 0; i < 1000; i++ {
		assert.Equal(t, "published", true, q.Publish(i))
	}
	assert.Equal(t, "len", 1000, q.Len())

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		v, err := q.Next(ctx)
		assert.Success(t, err)
		assert.Equal(t, "value", i, v)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := New[string]()
	q.Publish("a")
	q.Close(io.EOF)
	q.Close(errors.New("ignored"))

	assert.Equal(t, "published", false, q.Publish("b"))

	ctx := context.Background()
	v, err := q.Next(ctx)
	assert.Success(t, err)
	assert.Equal(t, "value", "a", v)

	for i := 0; i < 2; i++ {
		_, err = q.Next(ctx)
		assert.ErrorIs(t, io.EOF, err)
	}
}

func TestQueueWait(t *testing.T) {
	t.Parallel()

	q := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	go func() {
		time.Sleep(time.Millisecond * 10)
		q.Publish(7)
	}()

	v, err := q.Next(ctx)
	assert.Success(t, err)
	assert.Equal(t, "value", 7, v)
}

func TestQueueContext(t *testing.T) {
	t.Parallel()

	q := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, context.DeadlineExceeded, err)
}

func TestQueueDetach(t *testing.T) {
	t.Parallel()

	q := New[int]()
	q.Publish(1)
	q.Detach()

	assert.Equal(t, "len", 0, q.Len())
	assert.Equal(t, "published", false, q.Publish(2))

	q.Close(io.EOF)
	_, err := q.Next(context.Background())
	assert.ErrorIs(t, io.EOF, err)
}

func TestQueueConcurrentConsumers(t *testing.T) {
	t.Parallel()

	q := New[int]()

	const n = 500
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Next(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Publish(i)
	}
	q.Close(io.EOF)
	wg.Wait()

	assert.Equal(t, "consumed", n, len(seen))
}
