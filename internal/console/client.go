package console

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const attempts = 3

// Client talks to a running console. It reconnects and retries a command
// up to three times when the connection breaks.
type Client struct {
	addr   string
	tls    bool
	conn   net.Conn
	reader *bufio.Reader
	log    *zap.Logger
	mu     sync.Mutex
}

// RemoteError is an ERR reply from the console.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string { return e.Reason }

// Connect dials addr. With useTLS the server certificate is not verified:
// the console uses a self-signed one.
func Connect(addr string, useTLS bool, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{addr: addr, tls: useTLS, log: log}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.tls {
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, &tls.Config{InsecureSkipVerify: true})
	} else {
		conn, err = dialer.Dial("tcp", c.addr)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) sendAndReceive(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < attempts; i++ {
		if c.conn == nil {
			if rerr := c.reconnect(); rerr != nil {
				err = fmt.Errorf("reconnect failed: %w", rerr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(commandTimeout))

		var resp string
		if _, err = fmt.Fprint(c.conn, cmd+"\n"); err == nil {
			if resp, err = c.reader.ReadString('\n'); err == nil {
				resp = strings.TrimSpace(resp)
				if reason, ok := strings.CutPrefix(resp, "ERR"); ok {
					return "", &RemoteError{Reason: strings.TrimSpace(reason)}
				}
				return resp, nil
			}
		}

		c.log.Warn("console command failed", zap.Int("attempt", i+1), zap.Error(err))
		if rerr := c.reconnect(); rerr != nil {
			c.log.Warn("console reconnect failed", zap.Error(rerr))
		}
		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

func (c *Client) Ping() error {
	resp, err := c.sendAndReceive("PING")
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("unexpected reply %q", resp)
	}
	return nil
}

// Get returns the raw JSON stored at path.
func (c *Client) Get(path string) (json.RawMessage, error) {
	return c.payload("GET " + path)
}

func (c *Client) Exists(path string) (bool, error) {
	raw, err := c.payload("EXISTS " + path)
	if err != nil {
		return false, err
	}
	var ok bool
	err = json.Unmarshal(raw, &ok)
	return ok, err
}

// Dump returns the whole document, or one partition when given.
func (c *Client) Dump(partition string) (json.RawMessage, error) {
	cmd := "DUMP"
	if partition != "" {
		cmd += " " + partition
	}
	return c.payload(cmd)
}

func (c *Client) payload(cmd string) (json.RawMessage, error) {
	resp, err := c.sendAndReceive(cmd)
	if err != nil {
		return nil, err
	}
	body, ok := strings.CutPrefix(resp, "OK ")
	if !ok {
		return nil, fmt.Errorf("unexpected reply %q", resp)
	}
	return json.RawMessage(body), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprint(c.conn, "QUIT\n")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Decode reads the value at path into T.
func Decode[T any](c *Client, path string) (T, error) {
	var out T
	raw, err := c.Get(path)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// IsRemote reports whether err came back from the console rather than the
// connection.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
