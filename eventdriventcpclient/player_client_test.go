package eventdriventcpclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialPlayer_ConnectsAndStreams(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(50 * time.Millisecond)
		_, _ = conn.Write([]byte("hello"))
	}()

	client, err := DialPlayer(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	received := make(chan []byte, 1)
	client.OnDataReceived(func(event DataReceivedEvent) {
		received <- event.Data
	})

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data")
	}
}

func TestDialPlayer_FailsOnUnreachableAddress(t *testing.T) {
	_, err := DialPlayer("127.0.0.1:1")
	assert.Error(t, err)
}

func TestDialAnyOperatorConsole_DialsOneOfTheGivenAddresses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
	}()

	client, err := DialAnyOperatorConsole([]string{ln.Addr().String(), ln.Addr().String()})
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.IsConnected())
}
