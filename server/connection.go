package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/glennhenry/Stagecore/perfmonitor"
	"github.com/glennhenry/Stagecore/scope"
	"github.com/glennhenry/Stagecore/utils"
)

// readBufferSize is the chunk size used for each conn.Read call. Messages
// larger than this are expected to be reassembled by the registered formats,
// which receive exactly what was read on one call to Read, not a
// length-delimited frame.
const readBufferSize = 4096

// Connection wraps one accepted net.Conn together with the scope that owns
// its read loop and the mutable, set-once player identity a handler attaches
// to it via UpdatePlayerID.
type Connection struct {
	id     uint32
	conn   net.Conn
	server *Server
	scope  *scope.Scope

	closeOnce sync.Once

	mu       sync.Mutex
	playerID string
}

// ID returns the connection's server-assigned identifier.
func (c *Connection) ID() uint32 { return c.id }

// RemoteAddr returns the connection's remote address as a string.
func (c *Connection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// PlayerID returns the connection's current player id, UndeterminedPlayerID
// until a handler calls UpdatePlayerID.
func (c *Connection) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// UpdatePlayerID sets the connection's player id. Intended to be called
// exactly once, by the handler that authenticates the connection.
func (c *Connection) UpdatePlayerID(newID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = newID
}

// Read reads one chunk from the connection.
func (c *Connection) Read() (int, []byte, error) {
	buf := make([]byte, readBufferSize)
	n, err := c.conn.Read(buf)
	return n, buf[:n], err
}

// Write writes data to the connection.
func (c *Connection) Write(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

// Shutdown cancels the connection's scope and closes the underlying socket.
// Idempotent.
func (c *Connection) Shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		c.scope.Cancel()
		err = c.conn.Close()
	})
	return err
}

// sendRaw is the callback handlers reach through handler.Context.SendRaw.
func (c *Connection) sendRaw(data []byte, logOutput bool, logFull bool) error {
	err := c.Write(data)
	if logOutput {
		peekLen := 32
		if logFull {
			peekLen = len(data)
		}
		c.server.Logger.Debug(func() string {
			return fmt.Sprintf("sent %d bytes ascii=%q hex=%s", len(data), utils.AsciiSafe(data), utils.HexPeek(data, peekLen))
		})
	}
	return err
}

// handleLoop is the connection's read/decode/dispatch loop. It runs as a
// tracked task on the connection's scope; a panic from any handler it
// invokes is recovered here, terminating only this connection.
func (c *Connection) handleLoop(ctx context.Context) {
	defer c.cleanup()
	defer func() {
		if r := recover(); r != nil {
			c.server.Logger.Error(func() string {
				return fmt.Sprintf("connection %d (%s) panicked: %v", c.id, c.RemoteAddr(), r)
			})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, data, err := c.Read()
		if n <= 0 || err != nil {
			return
		}

		c.server.Players.UpdateLastActivity(c.PlayerID())

		mon := perfmonitor.NewPerformanceMonitor()
		mon.Start()
		msgType := c.server.handleMessage(c, data)
		mon.Stop()

		player := c.PlayerID()
		if player == UndeterminedPlayerID {
			player = c.RemoteAddr()
		}
		c.server.Logger.Debug(func() string {
			return fmt.Sprintf("processed packet type=%s player=%s durationMs=%.2f", msgType, player, mon.ElapsedMilliseconds())
		})
	}
}

// cleanup runs once per connection on handleLoop exit: it flushes the
// player's registry state if the connection ever authenticated, then
// guarantees the socket is closed and the connection is forgotten by the
// server.
func (c *Connection) cleanup() {
	id := c.PlayerID()
	if id != UndeterminedPlayerID {
		c.server.Players.MarkOffline(id)
		c.server.Players.UpdateLastLogin(id, time.Now())
		c.server.Players.RemovePlayerContext(id)
		c.server.Players.StopPlayerTasks(id)
	}
	_ = c.Shutdown()
	c.server.connections.Delete(c.id)
}
