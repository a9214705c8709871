package eventdriventcpclient

import (
	"time"

	"github.com/glennhenry/Stagecore/utils"
)

// DialPlayer connects to addr and returns a ready-to-use client suitable for
// simulating a player connection in tests: auto-reconnect disabled, short
// connection timeout, and streaming (non length-prefixed) reads matching the
// connection server's single conn.Read()-per-chunk framing.
func DialPlayer(addr string) (*EventDrivenTCPClient, error) {
	cfg := DefaultEventDrivenTCPClientConfig(addr)
	cfg.ConnectionTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second

	client := NewEventDrivenTCPClient(cfg)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// DialAnyOperatorConsole picks one address at random from addrs and dials it
// via DialOperatorConsole, useful when several interchangeable operator
// console frontends sit behind a pool and any one of them will do.
func DialAnyOperatorConsole(addrs []string) (*EventDrivenTCPClient, error) {
	return DialOperatorConsole(utils.GetRandomElement(addrs))
}

// DialOperatorConsole connects to addr using a length-prefixed framing,
// matching a small operator console's request/response protocol rather than
// the player protocol's raw streaming reads.
func DialOperatorConsole(addr string) (*EventDrivenTCPClient, error) {
	cfg := DefaultEventDrivenTCPClientConfig(addr)
	cfg.DataLengthBasedRead = true
	cfg.ConnectionTimeout = 5 * time.Second

	client := NewEventDrivenTCPClient(cfg)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}
