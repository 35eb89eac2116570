package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/liteclaw/unillm/pkg/llm"
)

// dispatch runs every call of one turn concurrently and returns the results
// in call order. One call timing out or failing does not affect the others.
func (c *Client) dispatch(ctx context.Context, calls []llm.ToolCall, execs map[string]llm.ToolExecutor, onResult func(ToolResult)) []ToolResult {
	results := make([]ToolResult, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	batchStart := time.Now()
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call llm.ToolCall) {
			defer wg.Done()
			r := c.execute(ctx, call, execs[call.Name])
			results[idx] = r
			if onResult != nil {
				mu.Lock()
				onResult(r)
				mu.Unlock()
			}
		}(i, call)
	}
	wg.Wait()

	c.logger.Debug().
		Int("count", len(calls)).
		Int64("duration_ms", time.Since(batchStart).Milliseconds()).
		Msg("tool batch complete")
	return results
}

type outcome struct {
	out string
	err error
}

// execute runs one call under the tool timeout. The executor goroutine is
// abandoned on timeout; it sees its context cancelled.
func (c *Client) execute(ctx context.Context, call llm.ToolCall, exec llm.ToolExecutor) (res ToolResult) {
	res = ToolResult{CallID: call.ID, Name: call.Name}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
	}()

	if exec == nil {
		res.Err = fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
		res.Content = ErrorText(call.Name, res.Err)
		c.logger.Warn().Str("tool", call.Name).Str("call_id", call.ID).Msg("tool not found")
		return res
	}

	args := call.Arguments
	if args == nil {
		args = llm.Arguments{}
	}

	c.logger.Debug().Str("tool", call.Name).Str("call_id", call.ID).Msg("tool start")

	tctx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Str("tool", call.Name).Interface("recover", r).Bytes("stack", debug.Stack()).Msg("tool panic")
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := exec(tctx, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		switch {
		case o.err == nil:
			res.Content = o.out
		case timedOut(ctx, tctx, o.err):
			res.Err = ErrToolTimeout
		default:
			res.Err = &ToolExecutionError{Name: call.Name, Err: o.err}
		}
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			res.Err = &ToolExecutionError{Name: call.Name, Err: err}
		} else {
			res.Err = ErrToolTimeout
		}
	}
	if res.Err != nil {
		res.Content = ErrorText(call.Name, res.Err)
	}

	c.logger.Info().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Bool("error", res.Err != nil).
		Msg("tool executed")
	return res
}

// timedOut reports whether err is the executor giving up on its own deadline
// rather than on the caller's cancellation.
func timedOut(parent, tctx context.Context, err error) bool {
	return parent.Err() == nil &&
		errors.Is(tctx.Err(), context.DeadlineExceeded) &&
		errors.Is(err, context.DeadlineExceeded)
}
