package console

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(t *testing.T) *engine.Document {
	t.Helper()
	doc := engine.NewDocument(nil, nil, nil)
	require.NoError(t, doc.Set("/CATEGORIES/home/data", map[string]any{"title": "Home"}))
	require.NoError(t, doc.Set("/USERS/al4str/data", map[string]any{"name": "Nyanto"}))
	return doc
}

func start(t *testing.T, c *Console) string {
	t.Helper()
	go c.Listen("0")
	t.Cleanup(func() { c.Stop() })

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = c.Addr()
		return addr != nil
	}, 2*time.Second, 10*time.Millisecond, "console did not start in time")
	return fmt.Sprintf("127.0.0.1:%d", addr.(*net.TCPAddr).Port)
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(cmd string) string {
	c.t.Helper()
	fmt.Fprintf(c.conn, "%s\n", cmd)
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func TestConsole_Commands(t *testing.T) {
	cl := dial(t, start(t, New(newDoc(t), nil)))

	tests := []struct {
		cmd  string
		want string
	}{
		{"PING", "PONG"},
		{"ping", "PONG"},
		{"GET /CATEGORIES/home/data", `OK {"title":"Home"}`},
		{"GET /CATEGORIES/nope", "ERR not found"},
		{"GET /a//b", "ERR invalid path"},
		{"EXISTS /USERS/al4str", "OK true"},
		{"EXISTS /USERS/nava", "OK false"},
		{"DUMP users", `OK {"al4str":{"data":{"name":"Nyanto"}}}`},
		{"DUMP BUDGET", "OK {}"},
		{"DUMP ACCOUNTS", "ERR unknown partition"},
		{"GET", "ERR usage: GET <path>"},
		{"SET /USERS/x 1", "ERR unknown command"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cl.send(tt.cmd), tt.cmd)
	}
}

func TestConsole_DumpRoot(t *testing.T) {
	cl := dial(t, start(t, New(newDoc(t), nil)))

	line := cl.send("DUMP")
	require.True(t, strings.HasPrefix(line, "OK "), line)
	assert.JSONEq(t, `{
		"CATEGORIES": {"home": {"data": {"title": "Home"}}},
		"USERS": {"al4str": {"data": {"name": "Nyanto"}}}
	}`, strings.TrimPrefix(line, "OK "))
}

func TestConsole_BlankLinesAndQuit(t *testing.T) {
	cl := dial(t, start(t, New(newDoc(t), nil)))

	fmt.Fprintf(cl.conn, "\n   \n")
	assert.Equal(t, "PONG", cl.send("PING"))

	fmt.Fprintf(cl.conn, "QUIT\n")
	cl.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := cl.r.ReadString('\n')
	assert.Error(t, err, "server closes the connection after QUIT")
}

func TestConsole_ConcurrentConnections(t *testing.T) {
	addr := start(t, New(newDoc(t), nil))

	conns := make([]net.Conn, 0)
	for i := 0; i < 110; i++ {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conns = append(conns, conn)
		}
	}
	for _, c := range conns {
		c.Close()
	}

	assert.Equal(t, "PONG", dial(t, addr).send("PING"))
}

func TestConsole_TLS(t *testing.T) {
	cert, err := vault.GenerateSelfSignedCert()
	require.NoError(t, err)

	c := New(newDoc(t), nil)
	c.SetCertificate(cert)
	addr := start(t, c)

	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "PING\n")
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", line)
}

func TestConsole_StopEndsListen(t *testing.T) {
	c := New(newDoc(t), nil)
	done := make(chan error, 1)
	go func() { done <- c.Listen("0") }()

	require.Eventually(t, func() bool { return c.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after Stop")
	}
}

func TestConsole_MasksSecrets(t *testing.T) {
	doc := newDoc(t)
	require.NoError(t, doc.Set("/USERS/al4str/data", map[string]any{"name": "Nyanto", "pin": "$2a$10$hash"}))
	require.NoError(t, doc.Set("/SESSIONS/al4str/data", map[string]any{"token": "secret-jwt"}))
	cl := dial(t, start(t, New(doc, nil)))

	tests := []struct {
		cmd  string
		want string
	}{
		{"GET /USERS/al4str/data", `OK {"name":"Nyanto","pin":"[redacted]"}`},
		{"GET /USERS/al4str/data/pin", `OK "[redacted]"`},
		{"GET /SESSIONS", `OK {"al4str":{"data":{"token":"[redacted]"}}}`},
		{"GET /SESSIONS/al4str/data/token", `OK "[redacted]"`},
		{"DUMP sessions", `OK {"al4str":{"data":{"token":"[redacted]"}}}`},
		{"DUMP users", `OK {"al4str":{"data":{"name":"Nyanto","pin":"[redacted]"}}}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cl.send(tt.cmd), tt.cmd)
	}

	dump := cl.send("DUMP")
	assert.NotContains(t, dump, "secret-jwt")
	assert.NotContains(t, dump, "$2a$10$hash")

	// the stored document is untouched
	val, err := doc.Get("/SESSIONS/al4str/data/token")
	require.NoError(t, err)
	assert.Equal(t, "secret-jwt", val)
}
