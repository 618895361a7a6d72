package graft

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for lifecycle events.
var (
	SignalTypeRegistered = capitan.NewSignal("graft.type.registered", "Type metadata registered or updated")
	SignalEncodeStart    = capitan.NewSignal("graft.encode.start", "Encode operation beginning")
	SignalEncodeComplete = capitan.NewSignal("graft.encode.complete", "Encode operation finished")
	SignalDecodeStart    = capitan.NewSignal("graft.decode.start", "Decode operation beginning")
	SignalDecodeComplete = capitan.NewSignal("graft.decode.complete", "Decode operation finished")
	SignalMarshaled      = capitan.NewSignal("graft.text.marshaled", "Plain data printed by a text codec")
	SignalUnmarshaled    = capitan.NewSignal("graft.text.unmarshaled", "Plain data parsed by a text codec")
)

// Signals for non-fatal traversal failures. Each failure leaves an absent
// value at the reported path while the rest of the graph is processed.
var (
	SignalConversionFailed       = capitan.NewSignal("graft.conversion.failed", "Value could not be converted to its declared type")
	SignalTypeUnresolved         = capitan.NewSignal("graft.type.unresolved", "Type reference could not be resolved")
	SignalDiscriminantUnresolved = capitan.NewSignal("graft.discriminant.unresolved", "Discriminant matched no registered type")
	SignalReferenceUnresolved    = capitan.NewSignal("graft.reference.unresolved", "Reference marker never resolved")
	SignalInjectionFailed        = capitan.NewSignal("graft.injection.failed", "Type injector could not supply an instance")
	SignalNodeMalformed          = capitan.NewSignal("graft.node.malformed", "Data node shape does not match declared type")
	SignalValueOpaque            = capitan.NewSignal("graft.value.opaque", "Value copied through without type information")
)

// Keys for typed event data.
var (
	KeyTypeName     = capitan.NewStringKey("type_name")
	KeyName         = capitan.NewStringKey("name")
	KeyPath         = capitan.NewStringKey("path")
	KeyContentType  = capitan.NewStringKey("content_type")
	KeySize         = capitan.NewIntKey("size")
	KeyFailureCount = capitan.NewIntKey("failure_count")
	KeyDuration     = capitan.NewDurationKey("duration")
	KeyError        = capitan.NewErrorKey("error")
)

// emitTypeRegistered emits an event when type metadata is configured.
func emitTypeRegistered(ctx context.Context, typeName, name string) {
	capitan.Emit(ctx, SignalTypeRegistered,
		KeyTypeName.Field(typeName),
		KeyName.Field(name),
	)
}

// emitEncodeStart emits an event when encode begins.
func emitEncodeStart(ctx context.Context, typeName string) {
	capitan.Emit(ctx, SignalEncodeStart,
		KeyTypeName.Field(typeName),
	)
}

// emitEncodeComplete emits an event when encode finishes.
func emitEncodeComplete(ctx context.Context, typeName string, duration time.Duration, failures int, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyDuration.Field(duration),
		KeyFailureCount.Field(failures),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalEncodeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalEncodeComplete, fields...)
	}
}

// emitDecodeStart emits an event when decode begins.
func emitDecodeStart(ctx context.Context, typeName string) {
	capitan.Emit(ctx, SignalDecodeStart,
		KeyTypeName.Field(typeName),
	)
}

// emitDecodeComplete emits an event when decode finishes.
func emitDecodeComplete(ctx context.Context, typeName string, duration time.Duration, failures int, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyDuration.Field(duration),
		KeyFailureCount.Field(failures),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalDecodeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalDecodeComplete, fields...)
	}
}

// emitMarshaled emits an event when encoded data is printed.
func emitMarshaled(ctx context.Context, contentType, typeName string, size int) {
	capitan.Emit(ctx, SignalMarshaled,
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
		KeySize.Field(size),
	)
}

// emitUnmarshaled emits an event when data is parsed before decode.
func emitUnmarshaled(ctx context.Context, contentType, typeName string, size int) {
	capitan.Emit(ctx, SignalUnmarshaled,
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
		KeySize.Field(size),
	)
}

// failureFields builds the event payload shared by all failure signals.
func failureFields(fe *FieldError) []capitan.Field {
	return []capitan.Field{
		KeyTypeName.Field(fe.Type),
		KeyPath.Field(fe.Path),
		KeyError.Field(fe),
	}
}

// emitFailure routes a localized traversal failure to the signal matching its sentinel.
func emitFailure(ctx context.Context, fe *FieldError) {
	fields := failureFields(fe)
	switch {
	case errors.Is(fe, ErrConversion), errors.Is(fe, ErrInterceptor):
		capitan.Error(ctx, SignalConversionFailed, fields...)
	case errors.Is(fe, ErrUnresolvedDiscriminant):
		capitan.Error(ctx, SignalDiscriminantUnresolved, fields...)
	case errors.Is(fe, ErrUnresolvedReference):
		capitan.Error(ctx, SignalReferenceUnresolved, fields...)
	case errors.Is(fe, ErrNotInjectable), errors.Is(fe, ErrInjectionCycle), errors.Is(fe, ErrConstruction):
		capitan.Error(ctx, SignalInjectionFailed, fields...)
	case errors.Is(fe, ErrUnresolvedType):
		capitan.Error(ctx, SignalTypeUnresolved, fields...)
	default:
		capitan.Error(ctx, SignalNodeMalformed, fields...)
	}
}

// emitOpaque reports a value passed through without type information.
func emitOpaque(ctx context.Context, typeName, path string) {
	capitan.Emit(ctx, SignalValueOpaque,
		KeyTypeName.Field(typeName),
		KeyPath.Field(path),
	)
}
