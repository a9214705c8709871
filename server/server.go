// Package server implements the connection server: it accepts TCP
// connections, runs one read/decode/dispatch loop per connection, and wires
// together the format registry, handler dispatcher, and player registry.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/glennhenry/Stagecore/format"
	"github.com/glennhenry/Stagecore/handler"
	"github.com/glennhenry/Stagecore/idgenerator"
	"github.com/glennhenry/Stagecore/logger"
	"github.com/glennhenry/Stagecore/message"
	"github.com/glennhenry/Stagecore/playerregistry"
	"github.com/glennhenry/Stagecore/safemap"
	"github.com/glennhenry/Stagecore/scope"
	"github.com/glennhenry/Stagecore/utils"
)

// UndeterminedPlayerID is a connection's PlayerID before any handler calls
// UpdatePlayerID.
const UndeterminedPlayerID = "[Undetermined]"

// EmptyDataSentinel is the message type handleMessage reports for a packet
// that contained zero bytes.
const EmptyDataSentinel = "[Empty data]"

// Server accepts connections on Addr and runs each through the shared
// format registry and handler dispatcher.
type Server struct {
	Addr     string
	Formats  *format.Registry
	Handlers *handler.Dispatcher
	Players  playerregistry.Registry
	Logger   logger.Logger

	idGen       *idgenerator.IdGenerator
	listener    net.Listener
	scope       *scope.Scope
	connections safemap.SafeMap[uint32, *Connection]

	shutdownOnce sync.Once
}

// NewServer constructs a Server bound to addr. players and log may be nil;
// players defaults to an in-memory registry with no account backing, log
// defaults to logger.Noop{}.
func NewServer(addr string, formats *format.Registry, handlers *handler.Dispatcher, players playerregistry.Registry, log logger.Logger) *Server {
	if players == nil {
		players = playerregistry.NewMemory(nil, 0)
	}
	if log == nil {
		log = logger.Noop{}
	}
	return &Server{
		Addr:     addr,
		Formats:  formats,
		Handlers: handlers,
		Players:  players,
		Logger:   log,
		idGen:    idgenerator.NewIdGenerator(0),
	}
}

// Start binds Addr and begins accepting connections in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("server failed to start on %s: %w", s.Addr, err)
	}

	s.listener = ln
	s.scope = scope.Root()
	s.scope.Go(s.acceptLoop)

	s.Logger.Info(func() string {
		return fmt.Sprintf("server listening on %s", s.Addr)
	})
	return nil
}

// ListenAddr returns the address the server is actually bound to, useful
// when Addr was given as "host:0" and the kernel picked the port.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown cancels the root scope (cascading to every connection scope),
// closes every connection and the listener, and waits for all spawned tasks
// to exit. Idempotent.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.scope != nil {
			s.scope.Cancel()
		}
		if s.listener != nil {
			err = s.listener.Close()
		}

		var conns []*Connection
		s.connections.Range(func(_ uint32, c *Connection) bool {
			conns = append(conns, c)
			return true
		})
		for _, c := range conns {
			_ = c.Shutdown()
			c.scope.Wait()
		}

		if s.scope != nil {
			s.scope.Wait()
		}
	})
	return err
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.Logger.Error(func() string {
				return fmt.Sprintf("accept error: %v", err)
			})
			continue
		}

		id := s.idGen.Id()
		connScope := s.scope.Child()
		c := &Connection{
			id:       id,
			conn:     conn,
			server:   s,
			scope:    connScope,
			playerID: UndeterminedPlayerID,
		}
		s.connections.Store(id, c)
		connScope.Go(c.handleLoop)
	}
}

// decodedCandidate pairs a successfully decoded message with the name of
// the format that produced it, for ambiguity logging.
type decodedCandidate struct {
	formatName string
	message    message.Message
}

// handleMessage implements the per-packet decode-then-dispatch algorithm.
// It returns the logical type of the message that was dispatched, the
// EmptyDataSentinel for a zero-length packet, or "" if no format produced a
// successful decode.
func (s *Server) handleMessage(conn *Connection, data []byte) string {
	if len(data) == 0 {
		s.Logger.Debug(func() string { return "empty packet received" })
		return EmptyDataSentinel
	}

	s.Logger.Debug(func() string {
		return fmt.Sprintf("received %d bytes ascii=%q hex=%s", len(data), utils.AsciiSafe(data), utils.HexPeek(data, 32))
	})

	candidates := s.Formats.IdentifyFormat(data)

	var successes []decodedCandidate
	for _, f := range candidates {
		s.tryDecode(f, data, &successes)
	}

	if len(successes) == 0 {
		return ""
	}

	chosen := successes[0]
	if len(successes) > 1 {
		names := make([]string, len(successes))
		for i, c := range successes {
			names[i] = c.formatName
		}
		s.Logger.Warn(func() string {
			return fmt.Sprintf("ambiguous decode: formats %v all matched, chose %s", names, chosen.formatName)
		})
	}

	handlers := s.Handlers.FindHandlerFor(chosen.message)
	for _, h := range handlers {
		ctx := handler.NewContext(conn.PlayerID(), chosen.message, conn.sendRaw, conn.UpdatePlayerID)
		if err := h.HandleUnsafe(ctx, chosen.message); err != nil {
			s.Logger.Error(func() string {
				return fmt.Sprintf("handler error for type %s: %v", chosen.message.Type(), err)
			})
		}
	}

	return chosen.message.Type()
}

// tryDecode runs one candidate format's TryDecode/Materialize pair, catching
// a panic from either step and logging it at Error instead of propagating.
func (s *Server) tryDecode(f format.Format, data []byte, successes *[]decodedCandidate) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error(func() string {
				return fmt.Sprintf("format %s panicked during decode: %v", f.Name(), r)
			})
		}
	}()

	result := f.TryDecode(data)
	if !result.Ok {
		return
	}
	msg := f.Materialize(result.Value)
	*successes = append(*successes, decodedCandidate{formatName: f.Name(), message: msg})
}
