// Package command implements the operator command dispatcher: commands are
// registered with a typed argument schema validated once at startup, then
// dispatched from raw, untyped request args decoded into that schema.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/glennhenry/Stagecore/logger"
	"github.com/glennhenry/Stagecore/notify"
)

// ArgSpec declares the metadata for one argument field of a command's
// argument struct: whether it is required, and, if not, the default value
// produced when the field is absent from the request.
type ArgSpec struct {
	Name        string
	Required    bool
	Default     any
	Description string
}

// ResultKind is the closed set of outcomes a command dispatch can produce.
type ResultKind int

const (
	ResultExecuted ResultKind = iota
	ResultSerializationFails
	ResultCommandNotFound
	ResultExecutionFailure
	ResultError
)

// String renders the result kind for logging.
func (k ResultKind) String() string {
	switch k {
	case ResultExecuted:
		return "Executed"
	case ResultSerializationFails:
		return "SerializationFails"
	case ResultCommandNotFound:
		return "CommandNotFound"
	case ResultExecutionFailure:
		return "ExecutionFailure"
	case ResultError:
		return "Error"
	default:
		return "unknown"
	}
}

// Result is the outcome of a command dispatch.
type Result struct {
	Kind    ResultKind
	Message string
}

// Executed reports a successful, side-effect-complete command run.
func Executed() Result { return Result{Kind: ResultExecuted} }

// SerializationFails reports that the request args did not decode against
// the command's schema.
func SerializationFails(msg string) Result { return Result{Kind: ResultSerializationFails, Message: msg} }

// CommandNotFound reports that no command is registered under the
// requested name.
func CommandNotFound(msg string) Result { return Result{Kind: ResultCommandNotFound, Message: msg} }

// ExecutionFailure reports a domain-level rejection raised deliberately by
// a command's own body.
func ExecutionFailure(msg string) Result { return Result{Kind: ResultExecutionFailure, Message: msg} }

// Error reports an unexpected panic captured during execution.
func Error(msg string) Result { return Result{Kind: ResultError, Message: msg} }

// CommandRequest is a name plus a bag of raw argument values to decode
// against the named command's schema.
type CommandRequest struct {
	Name string
	Args map[string]any
}

// Context is passed to every command execution. OperatorID identifies who
// issued the command, if known.
type Context struct {
	OperatorID string
}

// Command is a registered operator action. Its unexported methods confine
// implementations to TypedCommand, the same centralized-downcast discipline
// format.TypedFormat and handler.TypedHandler use.
type Command interface {
	Name() string
	ShortDescription() string
	DetailedDescription() string
	CompletionMessage() string
	Specs() []ArgSpec

	argType() reflect.Type
	decode(data []byte, codec Codec) (any, error)
	execute(ctx *Context, args any) Result
}

// TypedCommand adapts a command whose argument type is a concrete Go struct
// A into the type-erased Command interface. decode is the one place per
// command where a raw request is turned into A; execute is the one place
// where the any-erased decoded value is re-asserted back to A.
type TypedCommand[A any] struct {
	CommandName string
	Short       string
	Detailed    string
	Completion  string
	ArgSpecs    []ArgSpec

	// ExecuteFn is the typed command body.
	ExecuteFn func(ctx *Context, args A) Result
}

func (c *TypedCommand[A]) Name() string                { return c.CommandName }
func (c *TypedCommand[A]) ShortDescription() string    { return c.Short }
func (c *TypedCommand[A]) DetailedDescription() string { return c.Detailed }
func (c *TypedCommand[A]) CompletionMessage() string   { return c.Completion }
func (c *TypedCommand[A]) Specs() []ArgSpec            { return c.ArgSpecs }

func (c *TypedCommand[A]) argType() reflect.Type {
	var zero A
	return reflect.TypeOf(zero)
}

func (c *TypedCommand[A]) decode(data []byte, codec Codec) (any, error) {
	var args A
	dec := json.NewDecoder(bytes.NewReader(data))
	if !codec.IgnoreUnknownKeys {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}

func (c *TypedCommand[A]) execute(ctx *Context, args any) Result {
	typed, ok := args.(A)
	if !ok {
		return Error(fmt.Sprintf("command %s: decoded argument is %T, not %T", c.CommandName, args, typed))
	}
	return c.ExecuteFn(ctx, typed)
}

// Codec controls how a Dispatcher decodes request args against a command's
// argument struct. It is injected per-Dispatcher rather than configured
// globally, so different dispatchers (e.g. a strict admin console vs. a
// lenient scripted test harness) can disagree.
type Codec struct {
	// IgnoreUnknownKeys, when true, allows request args carrying fields the
	// argument struct does not declare. When false, decoding enforces
	// DisallowUnknownFields.
	IgnoreUnknownKeys bool

	// Lenient is carried for interface parity with systems whose JSON codec
	// supports a relaxed-parsing mode (trailing commas, comments, etc.).
	// encoding/json has no such mode, so this field is a documented no-op.
	Lenient bool
}

// Dispatcher holds the registered command table and dispatches
// CommandRequests against it.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]Command

	codec    Codec
	logger   logger.Logger
	notifier notify.Notifier
}

// NewDispatcher returns an empty Dispatcher. log defaults to logger.Noop{}
// and notifier to notify.Noop{} if nil.
func NewDispatcher(codec Codec, log logger.Logger, notifier notify.Notifier) *Dispatcher {
	if log == nil {
		log = logger.Noop{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Dispatcher{
		commands: make(map[string]Command),
		codec:    codec,
		logger:   log,
		notifier: notifier,
	}
}

// Register validates cmd's argument schema and adds it to the dispatcher.
// Registration fails if cmd.Name() duplicates an already-registered
// command, or if schema validation (see validateSchema) fails. Intended to
// be called only during initialization, before the dispatcher serves any
// requests.
func (d *Dispatcher) Register(cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.commands[cmd.Name()]; exists {
		return fmt.Errorf("command %q is already registered", cmd.Name())
	}

	if err := validateSchema(cmd, d.codec); err != nil {
		return err
	}

	d.commands[cmd.Name()] = cmd
	return nil
}

// validateSchema performs the five-step schema check: every argument field
// has ArgSpec metadata, every optional field declares a non-nil default,
// decoding an empty object produces exactly those defaults, and no ArgSpec
// names a field that does not exist.
func validateSchema(cmd Command, codec Codec) error {
	argType := cmd.argType()
	if argType == nil || argType.Kind() != reflect.Struct {
		return fmt.Errorf("command %q: argument type must be a struct", cmd.Name())
	}

	fieldsByJSONName := make(map[string]reflect.StructField)
	for i := 0; i < argType.NumField(); i++ {
		f := argType.Field(i)
		name := jsonFieldName(f)
		if name == "-" {
			continue
		}
		fieldsByJSONName[name] = f
	}

	specsByName := make(map[string]ArgSpec)
	for _, spec := range cmd.Specs() {
		specsByName[spec.Name] = spec
	}

	for name := range fieldsByJSONName {
		spec, ok := specsByName[name]
		if !ok {
			return fmt.Errorf("command %q: field %q has no ArgSpec metadata", cmd.Name(), name)
		}
		if !spec.Required && spec.Default == nil {
			return fmt.Errorf("command %q: optional field %q must declare a non-nil Default", cmd.Name(), name)
		}
	}

	for name := range specsByName {
		if _, ok := fieldsByJSONName[name]; !ok {
			return fmt.Errorf("command %q: ArgSpec %q does not match any argument field", cmd.Name(), name)
		}
	}

	zeroDecoded, err := cmd.decode([]byte("{}"), codec)
	if err != nil {
		return fmt.Errorf("command %q: decoding an empty object failed: %w", cmd.Name(), err)
	}
	zeroVal := reflect.ValueOf(zeroDecoded)
	for name, field := range fieldsByJSONName {
		spec := specsByName[name]
		if spec.Required {
			continue
		}
		fv := zeroVal.FieldByIndex(field.Index)
		if !reflect.DeepEqual(fv.Interface(), spec.Default) {
			return fmt.Errorf(
				"command %q: field %q decodes to %v from {} but declares Default %v",
				cmd.Name(), name, fv.Interface(), spec.Default,
			)
		}
	}

	return nil
}

func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "" {
		return f.Name
	}
	return parts[0]
}

// HandleCommand looks up request.Name, decodes request.Args against its
// schema, and executes it. Unknown names yield CommandNotFound; decode
// failures yield SerializationFails; a panic during execution is recovered
// and converted to Error, which also fires the dispatcher's Notifier.
func (d *Dispatcher) HandleCommand(request CommandRequest) Result {
	d.mu.RLock()
	cmd, ok := d.commands[request.Name]
	d.mu.RUnlock()

	if !ok {
		return CommandNotFound(fmt.Sprintf("no command registered with name %q", request.Name))
	}

	d.logger.Info(func() string {
		return fmt.Sprintf("command %q: input=%v", request.Name, request.Args)
	})

	for _, spec := range cmd.Specs() {
		if spec.Required {
			if _, present := request.Args[spec.Name]; !present {
				return SerializationFails(fmt.Sprintf("missing required field %q", spec.Name))
			}
		}
	}

	data, err := json.Marshal(request.Args)
	if err != nil {
		return SerializationFails(err.Error())
	}

	decoded, err := cmd.decode(data, d.codec)
	if err != nil {
		return SerializationFails(err.Error())
	}

	result := d.executeSafely(cmd, decoded)
	if result.Kind == ResultError {
		d.notifier.Notify(request.Name, result.Message)
	}
	return result
}

func (d *Dispatcher) executeSafely(cmd Command, args any) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Error(fmt.Sprintf("panic: %v", r))
		}
	}()
	return cmd.execute(&Context{}, args)
}
