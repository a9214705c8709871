// Package handler implements the typed handler dispatcher: handlers are
// bound to exactly one (messageType, expectedMessageClass) pair, registration
// enforces that every handler for a type agrees on the expected class, and
// FindHandlerFor always returns a non-empty list (falling back to
// DefaultHandler).
//
// Handlers are stored in a heterogeneous container (any concrete message
// subtype). The unchecked cast from message.Message to a handler's expected
// concrete type is centralized in TypedHandler.HandleUnsafe, which
// re-verifies the cast succeeded before invoking the typed Handle function.
package handler

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/glennhenry/Stagecore/logger"
	"github.com/glennhenry/Stagecore/message"
)

// Context is built fresh for each (message, handler) pairing and is the only
// way a handler may touch its owning connection.
type Context struct {
	PlayerID       string
	Message        message.Message
	sendRaw        func(data []byte, logOutput bool, logFull bool) error
	updatePlayerID func(newID string)
}

// NewContext builds a Context bound to the given send/update-player-id
// callbacks. Typically called once per packet, per matched handler, by the
// connection server.
func NewContext(playerID string, msg message.Message, sendRaw func(data []byte, logOutput, logFull bool) error, updatePlayerID func(newID string)) *Context {
	return &Context{PlayerID: playerID, Message: msg, sendRaw: sendRaw, updatePlayerID: updatePlayerID}
}

// SendRaw writes data back to the connection that produced Message.
func (c *Context) SendRaw(data []byte, logOutput bool, logFull bool) error {
	return c.sendRaw(data, logOutput, logFull)
}

// UpdatePlayerID transitions the owning connection's player id exactly once.
func (c *Context) UpdatePlayerID(newID string) {
	c.updatePlayerID(newID)
}

// Handler is bound to exactly one (MessageType, ExpectedClass) pair.
type Handler interface {
	// MessageType is the logical message type this handler is bucketed under.
	MessageType() string

	// ExpectedClass is the concrete message class this handler expects.
	ExpectedClass() reflect.Type

	// Matches reports whether msg's type and class satisfy this handler's
	// dispatch predicate (messageType match AND expectedClass.isInstance).
	Matches(msg message.Message) bool

	// HandleUnsafe re-verifies the cast from message.Message to this
	// handler's expected concrete type, then invokes the typed handler body.
	HandleUnsafe(ctx *Context, msg message.Message) error
}

// TypedHandler adapts a handler whose message parameter is a concrete Go
// type M into the type-erased Handler interface. HandleUnsafe is the single
// centralized downcast site for this handler.
type TypedHandler[M message.Message] struct {
	Type string

	// Handle is the typed handler body.
	Handle func(ctx *Context, msg M) error

	// ShouldHandle, if set, runs after the cast and may return false to
	// silently skip this handler for a particular message instance.
	ShouldHandle func(msg M) bool
}

// MessageType implements Handler.
func (h *TypedHandler[M]) MessageType() string { return h.Type }

// ExpectedClass implements Handler.
func (h *TypedHandler[M]) ExpectedClass() reflect.Type {
	var zero M
	return reflect.TypeOf(zero)
}

// Matches implements Handler.
func (h *TypedHandler[M]) Matches(msg message.Message) bool {
	if msg.Type() != h.Type {
		return false
	}
	_, ok := msg.(M)
	return ok
}

// HandleUnsafe implements Handler.
func (h *TypedHandler[M]) HandleUnsafe(ctx *Context, msg message.Message) error {
	typed, ok := msg.(M)
	if !ok {
		return fmt.Errorf("handler for type %q: message is %T, not expected class %s", h.Type, msg, h.ExpectedClass())
	}

	if h.ShouldHandle != nil && !h.ShouldHandle(typed) {
		return nil
	}

	return h.Handle(ctx, typed)
}

// DefaultHandler matches any message. It logs a warning naming the unknown
// message type and performs no writes, guaranteeing FindHandlerFor is total.
type defaultHandler struct {
	logger logger.Logger
}

func (d *defaultHandler) MessageType() string          { return "*" }
func (d *defaultHandler) ExpectedClass() reflect.Type  { return nil }
func (d *defaultHandler) Matches(msg message.Message) bool { return true }
func (d *defaultHandler) HandleUnsafe(ctx *Context, msg message.Message) error {
	d.logger.Warn(func() string {
		return fmt.Sprintf("no handler registered for message type %q", msg.Type())
	})
	return nil
}

// Dispatcher holds the typed handler table. Registration is expected to
// happen during initialization (single writer); FindHandlerFor is expected
// to be called concurrently from many connection goroutines during serving.
type Dispatcher struct {
	mu      sync.RWMutex
	byType  map[string][]Handler
	all     []Handler
	logger  logger.Logger
	fallback *defaultHandler
}

// NewDispatcher returns an empty Dispatcher. log may be logger.Noop{}.
func NewDispatcher(log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Noop{}
	}
	return &Dispatcher{
		byType:   make(map[string][]Handler),
		logger:   log,
		fallback: &defaultHandler{logger: log},
	}
}

// Register adds handler to its message type's bucket. If the bucket is
// non-empty and the existing handlers' expected class differs from
// handler's, registration fails (the Handler invariant, §3): within one
// dispatcher, every handler for a given messageType must expect the same
// concrete class.
func (d *Dispatcher) Register(h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bucket := d.byType[h.MessageType()]
	if len(bucket) > 0 {
		existing := bucket[0].ExpectedClass()
		if existing != h.ExpectedClass() {
			return fmt.Errorf(
				"handler registration conflict for message type %q: expected class %s, got %s",
				h.MessageType(), existing, h.ExpectedClass(),
			)
		}
	}

	d.byType[h.MessageType()] = append(bucket, h)
	d.all = append(d.all, h)
	return nil
}

// FindHandlerFor returns the handlers that should process msg, in
// registration order. The bucket for msg.Type() is filtered by Matches; if
// the bucket is empty, or nothing in it matches, the result is the
// singleton DefaultHandler list (Open Question i: no secondary re-filter of
// the full handler set is attempted).
func (d *Dispatcher) FindHandlerFor(msg message.Message) []Handler {
	d.mu.RLock()
	bucket := d.byType[msg.Type()]
	candidates := make([]Handler, len(bucket))
	copy(candidates, bucket)
	d.mu.RUnlock()

	var matched []Handler
	for _, h := range candidates {
		if h.Matches(msg) {
			matched = append(matched, h)
		}
	}

	if len(matched) == 0 {
		return []Handler{d.fallback}
	}
	return matched
}

// DefaultHandlerInstance exposes the dispatcher's fallback handler, mostly
// useful for tests asserting FindHandlerFor fell back to it.
func (d *Dispatcher) DefaultHandlerInstance() Handler {
	return d.fallback
}
