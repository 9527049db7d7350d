package engine

import (
	"context"
	"errors"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/tracer"
)

// Status codes returned to the plugin by emit_trace
const (
	statusContinue uint64 = 0
	statusStop     uint64 = 1
	statusInvalid  uint64 = 2
)

// handleTrace decodes one msgpack record and dispatches it
func (e *Engine) handleTrace(data []byte) uint64 {
	record, err := tracer.UnmarshalRecordMsgpack(data)
	if err != nil {
		e.logger.Warn("dropping malformed trace record", zap.Error(err))
		return statusInvalid
	}
	if !e.dispatch(record) {
		return statusStop
	}
	return statusContinue
}

// createEmitTraceHostFunc creates the host function receiving trace records
func createEmitTraceHostFunc(e *Engine) extism.HostFunction {
	return extism.NewHostFunctionWithStack(
		"emit_trace",
		func(ctx context.Context, plugin *extism.CurrentPlugin, stack []uint64) {
			data, err := plugin.ReadBytes(stack[0])
			if err != nil {
				plugin.Logf(extism.LogLevelError, "Failed to read trace record: %v", err)
				stack[0] = statusInvalid
				return
			}
			stack[0] = e.handleTrace(data)
		},
		[]extism.ValueType{extism.ValueTypeI64}, // input: offset to msgpack record
		[]extism.ValueType{extism.ValueTypeI64}, // output: status
	)
}

// createEmitErrorHostFunc creates the host function receiving engine errors
func createEmitErrorHostFunc(e *Engine) extism.HostFunction {
	return extism.NewHostFunctionWithStack(
		"emit_error",
		func(ctx context.Context, plugin *extism.CurrentPlugin, stack []uint64) {
			data, err := plugin.ReadBytes(stack[0])
			if err != nil {
				plugin.Logf(extism.LogLevelError, "Failed to read engine error: %v", err)
				return
			}
			e.dispatchError(errors.New(string(data)))
		},
		[]extism.ValueType{extism.ValueTypeI64}, // input: offset to message
		[]extism.ValueType{},
	)
}
