package executor

import (
	"context"
	"errors"

	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/middleware"
)

// StreamChunk is one incremental unit of output from Stream. Err is
// set on the final chunk of a failed stream; Done marks the last
// chunk of a successful one.
type StreamChunk struct {
	Data map[string]any
	Err  error
	Done bool
}

// StreamingHandler is implemented by modules whose handler produces
// output incrementally (module.Annotations.Streaming = true,
// spec.md §4.9's "streaming" hint). emit is called once per chunk; a
// non-nil return from emit aborts the stream early (e.g. the
// consumer disconnected).
type StreamingHandler interface {
	ExecuteStream(ctx context.Context, callCtx *core.Context, inputs map[string]any, emit func(map[string]any) error) error
}

// Stream runs steps 1–6 exactly like Call, then drives the handler
// incrementally if it implements StreamingHandler, or else executes it
// once via the ordinary timeout-enforced path and emits the single
// result as one chunk. Each chunk is still subject to output
// validation (step 8) before being handed to the caller; an
// after-chain and return (steps 9–10) run once, after the last chunk.
func (ex *Executor) Stream(ctx context.Context, moduleID string, inputs map[string]any, parent *core.Context, opts ...CallOption) (<-chan StreamChunk, error) {
	o := resolveCallOptions(opts)

	callCtx, mod, preparedInputs, err := ex.prepare(ctx, moduleID, inputs, parent, o)
	if err != nil {
		return nil, err
	}

	beforeInputs, executed, err := ex.Middleware.ExecuteBefore(moduleID, preparedInputs, callCtx)
	if err != nil {
		var chainErr *middleware.ChainError
		if errors.As(err, &chainErr) {
			if recovered := ex.Middleware.ExecuteOnError(chainErr.ExecutedMiddlewares, moduleID, preparedInputs, chainErr.Original, callCtx, ex.middlewareErrorLogger(moduleID)); recovered != nil {
				out := make(chan StreamChunk, 1)
				final, ferr := ex.finishAfterChain(moduleID, preparedInputs, recovered, callCtx)
				out <- toChunk(final, ferr)
				close(out)
				return out, nil
			}
		}
		return nil, err
	}

	handler, streams := mod.Handler.(StreamingHandler)
	out := make(chan StreamChunk)

	go func() {
		defer close(out)

		if !streams {
			output, execErr := ex.executeWithTimeout(callCtx, mod, beforeInputs, o)
			if execErr != nil {
				if recovered := ex.Middleware.ExecuteOnError(executed, moduleID, beforeInputs, execErr, callCtx, ex.middlewareErrorLogger(moduleID)); recovered != nil {
					output = recovered
				} else {
					out <- StreamChunk{Err: execErr, Done: true}
					return
				}
			}
			validated, verr := ex.validateOutput(mod, output)
			if verr != nil {
				recovered, rerr := ex.recoverAfterOutputStage(mod, moduleID, executed, beforeInputs, verr, callCtx)
				out <- toChunk(recovered, rerr)
				return
			}
			final, ferr := ex.finishAfterChain(moduleID, beforeInputs, validated, callCtx)
			if ferr != nil {
				recovered, rerr := ex.recoverAfterOutputStage(mod, moduleID, executed, beforeInputs, ferr, callCtx)
				out <- toChunk(recovered, rerr)
				return
			}
			out <- toChunk(final, nil)
			return
		}

		var lastChunk map[string]any
		emitErr := handler.ExecuteStream(callCtx.GoContext(), callCtx, beforeInputs, func(chunk map[string]any) error {
			validated, verr := ex.validateOutput(mod, chunk)
			if verr != nil {
				return verr
			}
			lastChunk = validated
			out <- StreamChunk{Data: validated}
			return nil
		})
		if emitErr != nil {
			recovered, rerr := ex.recoverAfterOutputStage(mod, moduleID, executed, beforeInputs, emitErr, callCtx)
			out <- toChunk(recovered, rerr)
			return
		}

		final, ferr := ex.finishAfterChain(moduleID, beforeInputs, lastChunk, callCtx)
		if ferr != nil {
			recovered, rerr := ex.recoverAfterOutputStage(mod, moduleID, executed, beforeInputs, ferr, callCtx)
			out <- toChunk(recovered, rerr)
			return
		}
		out <- toChunk(final, nil)
	}()

	return out, nil
}

func toChunk(data map[string]any, err error) StreamChunk {
	if err != nil {
		return StreamChunk{Err: err, Done: true}
	}
	return StreamChunk{Data: data, Done: true}
}
