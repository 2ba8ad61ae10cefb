package wire

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// pipe returns two connected Endpoints backed by a real loopback TCP
// socket, since Endpoint wraps net.Conn directly.
func pipe(t *testing.T) (client, server *Endpoint) {
	t.Helper()
	ln, err := Listen("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	defer ln.Close()

	var wg sync.WaitGroup
	var srv *Endpoint
	accepted := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := ln.ln.Accept()
		if err != nil {
			return
		}
		srv = newEndpoint(conn)
		close(accepted)
	}()

	cli, err := Dial(ln.Addr(), testTimeout)
	require.NoError(t, err)

	<-accepted
	wg.Wait()
	return cli, srv
}

func TestInt64RoundTrip(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	for _, v := range []int64{0, 1, -1, 42, 1 << 40, -(1 << 40)} {
		require.NoError(t, client.WriteInt64(v, testTimeout))
		got, err := server.ReadInt64(testTimeout)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	for _, s := range []string{"", "hello", "job-with-dashes_and_underscores"} {
		require.NoError(t, client.WriteString(s, testTimeout))
		got, err := server.ReadString(testTimeout)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	for _, p := range [][]byte{nil, []byte{}, []byte("payload bytes")} {
		require.NoError(t, client.Write(p, testTimeout))
		got, err := server.Read(testTimeout)
		require.NoError(t, err)
		assert.Equal(t, len(p), len(got))
		if len(p) > 0 {
			assert.Equal(t, p, got)
		}
	}
}

func TestHandshakeMatch(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	var wg sync.WaitGroup
	var peerMatched bool
	var peerErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, peerMatched, peerErr = server.Handshake("job-1", testTimeout)
	}()

	peerJobID, matched, err := client.Handshake("job-1", testTimeout)
	wg.Wait()

	require.NoError(t, err)
	require.NoError(t, peerErr)
	assert.True(t, matched)
	assert.True(t, peerMatched)
	assert.Equal(t, "job-1", peerJobID)
}

func TestHandshakeMismatch(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Handshake("job-other", testTimeout)
	}()

	_, matched, err := client.Handshake("job-1", testTimeout)
	wg.Wait()

	require.NoError(t, err)
	assert.False(t, matched, "mismatched job ids must not report matched")
}

func TestVerbString(t *testing.T) {
	assert.Equal(t, "SEND_TASK", SendTask.String())
	assert.NotEmpty(t, Terminate.String())
}
