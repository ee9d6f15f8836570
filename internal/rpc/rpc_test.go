package rpc

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveUpper(ctx context.Context, q *Queue[string, string]) {
	for {
		select {
		case <-ctx.Done():
			return
		case call := <-q.Calls():
			call.Reply(strings.ToUpper(call.Request))
		}
	}
}

func TestSendReceivesReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue[string, string](0)
	go serveUpper(ctx, q)

	got, err := q.Send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)
}

func TestConcurrentSendersGetOwnReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue[string, string](4)
	go serveUpper(ctx, q)

	var wg sync.WaitGroup
	for _, word := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			got, err := q.Send(ctx, w)
			assert.NoError(t, err)
			assert.Equal(t, strings.ToUpper(w), got)
		}(word)
	}
	wg.Wait()
}

func TestReplyOnlyOnce(t *testing.T) {
	q := NewQueue[string, string](1)
	go func() {
		call := <-q.Calls()
		call.Reply("first")
		call.Reply("second")
	}()

	got, err := q.Send(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestSendTimesOut(t *testing.T) {
	q := NewQueue[string, string](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Send(ctx, "nobody listening")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendAfterClose(t *testing.T) {
	q := NewQueue[string, string](1)
	q.Close()
	q.Close()

	_, err := q.Send(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCallContextOutlivesSender(t *testing.T) {
	q := NewQueue[string, string](1)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		call := <-q.Calls()
		cancel()
		served <- call.Ctx.Err()
		call.Reply("done")
	}()

	_, _ = q.Send(ctx, "x")
	assert.NoError(t, <-served)
}
