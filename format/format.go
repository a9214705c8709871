// Package format implements the wire format registry: a cheap predicate
// (Verify) pre-filters candidate formats for a packet, then the authoritative
// TryDecode/Materialize pair turns a matching packet into a message.Message.
//
// A format may carry an intermediate decoded representation distinct from its
// final Message. That representation is type-erased to any at the registry
// boundary and re-asserted exactly once, inside TypedFormat — the same
// centralized-downcast discipline the handler dispatcher uses for handlers.
package format

import (
	"fmt"
	"sync"

	"github.com/glennhenry/Stagecore/logger"
	"github.com/glennhenry/Stagecore/message"
	"github.com/glennhenry/Stagecore/utils"
)

// DecodeResult is the outcome of Format.TryDecode.
type DecodeResult struct {
	// Ok is true iff decoding succeeded; Value then holds the intermediate
	// decoded representation (any; the concrete type matches what the
	// format's Materialize expects).
	Ok     bool
	Value  any
	Reason string
	Cause  error
}

// Success builds an Ok DecodeResult carrying v.
func Success(v any) DecodeResult { return DecodeResult{Ok: true, Value: v} }

// Failure builds a failed DecodeResult with an optional reason and cause.
func Failure(reason string, cause error) DecodeResult {
	return DecodeResult{Ok: false, Reason: reason, Cause: cause}
}

// Format is a registered wire format: a human-readable name, a cheap
// pre-filter, a total decode function, and a total materializer.
type Format interface {
	// Name identifies the format in logs (ambiguity warnings, verify
	// panics).
	Name() string

	// Verify is a cheap, allowed-to-false-positive pre-filter. It must not
	// fully parse the packet; a panic is caught and treated as false.
	Verify(data []byte) bool

	// TryDecode is the authoritative decode step. It must be total: it
	// returns a failed DecodeResult rather than relying on panicking, though
	// a panic is still caught by the registry's caller.
	TryDecode(data []byte) DecodeResult

	// Materialize turns a successful TryDecode's Value into a message.
	Materialize(value any) message.Message
}

// TypedFormat adapts a format whose intermediate decoded representation is a
// concrete Go type T into the type-erased Format interface. The any-cast in
// Materialize is the one place per format where erasure is undone.
type TypedFormat[T any] struct {
	FormatName    string
	VerifyFn      func(data []byte) bool
	DecodeFn      func(data []byte) (T, DecodeResult)
	MaterializeFn func(value T) message.Message
}

// Name implements Format.
func (f *TypedFormat[T]) Name() string { return f.FormatName }

// Verify implements Format.
func (f *TypedFormat[T]) Verify(data []byte) bool { return f.VerifyFn(data) }

// TryDecode implements Format.
func (f *TypedFormat[T]) TryDecode(data []byte) DecodeResult {
	v, result := f.DecodeFn(data)
	if !result.Ok {
		return result
	}
	result.Value = v
	return result
}

// Materialize implements Format.
func (f *TypedFormat[T]) Materialize(value any) message.Message {
	typed, ok := value.(T)
	if !ok {
		panic(fmt.Sprintf("format %s: materialize called with %T, expected %T", f.FormatName, value, typed))
	}
	return f.MaterializeFn(typed)
}

// DefaultMessageType re-exports message.DefaultMessageType for callers that
// only import format.
const DefaultMessageType = message.DefaultMessageType

// defaultFormat is the built-in fallback: it always verifies true, always
// decodes successfully to the ascii-safe rendering of the packet, and
// materializes a message.DefaultMessage.
type defaultFormat struct{}

func (defaultFormat) Name() string                 { return "default" }
func (defaultFormat) Verify(data []byte) bool       { return true }
func (defaultFormat) TryDecode(data []byte) DecodeResult {
	return Success(utils.AsciiSafe(data))
}
func (defaultFormat) Materialize(value any) message.Message {
	raw, _ := value.(string)
	return message.DefaultMessage{Raw: raw}
}

// DefaultFormat is the shared instance of the built-in fallback format.
var DefaultFormat Format = defaultFormat{}

// Registry holds the ordered list of candidate formats. Registration is
// expected to happen during initialization (single writer); IdentifyFormat
// is expected to be called concurrently from many connection goroutines
// during serving.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
	logger  logger.Logger
}

// NewRegistry returns an empty Registry. log may be logger.Noop{} if no
// diagnostics are needed.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Noop{}
	}
	return &Registry{logger: log}
}

// Register appends format to the ordered candidate list. There is no
// uniqueness check; registration order is observable through ambiguity
// resolution (the first registered match wins ties, §5/§9).
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats = append(r.formats, f)
}

// IdentifyFormat returns every registered format whose Verify returns true
// for data, in registration order. A panicking Verify is caught, logged at
// Verbose with a hex/ascii peek of up to 20 bytes, and that format is
// skipped. If no format matches, the result is the singleton default format.
func (r *Registry) IdentifyFormat(data []byte) []Format {
	r.mu.RLock()
	candidates := make([]Format, len(r.formats))
	copy(candidates, r.formats)
	r.mu.RUnlock()

	var matched []Format
	for _, f := range candidates {
		if verifySafely(f, data, r.logger) {
			matched = append(matched, f)
		}
	}

	if len(matched) == 0 {
		return []Format{DefaultFormat}
	}
	return matched
}

func verifySafely(f Format, data []byte, log logger.Logger) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Verbose(func() string {
				return fmt.Sprintf("format %s: verify panicked: %v (ascii=%q hex=%s)",
					f.Name(), rec, utils.AsciiSafe(peek(data, 20)), utils.HexPeek(data, 20))
			})
			ok = false
		}
	}()
	return f.Verify(data)
}

func peek(data []byte, max int) []byte {
	if len(data) <= max {
		return data
	}
	return data[:max]
}
