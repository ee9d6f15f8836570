package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

const maxLineSize = 8 << 20

// ServeStream reads newline-delimited JSON requests from r and writes one
// JSON response line per request to w. Requests are dispatched concurrently,
// so responses may arrive out of order; requestId correlates them.
// It returns when r is exhausted and every reply has been written.
func (a *Adapter) ServeStream(ctx context.Context, r io.Reader, w io.Writer) error {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		enc = json.NewEncoder(w)
	)
	write := func(resp Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			a.logger.Sugar().Warnw("writing response", "request_id", resp.RequestID, "error", err)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			write(protocolError("", fmt.Errorf("malformed message: %w", err)))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			write(a.Handle(ctx, req))
		}()
	}
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}
