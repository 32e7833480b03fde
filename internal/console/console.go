// Package console serves a read-only line protocol over TCP (optionally
// TLS) for inspecting the ledger document:
//
//	PING            -> PONG
//	GET <path>      -> OK <json> | ERR <reason>
//	EXISTS <path>   -> OK true|false
//	DUMP [part]     -> OK <json of the root or one partition>
//	QUIT
//
// Session tokens and PIN hashes are masked in every reply.
package console

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"go.uber.org/zap"
)

const (
	maxConnections = 100
	sessionTimeout = 5 * time.Minute
	commandTimeout = 30 * time.Second
)

var ErrUnknownPartition = errors.New("unknown partition")

type Console struct {
	doc  *engine.Document
	cert *tls.Certificate
	log  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func New(doc *engine.Document, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{doc: doc, log: log}
}

// SetCertificate enables TLS on the next Listen.
func (c *Console) SetCertificate(cert tls.Certificate) {
	c.cert = &cert
}

// Listen accepts connections on port until Stop is called. It returns nil
// after a Stop.
func (c *Console) Listen(port string) error {
	var listener net.Listener
	var err error

	if c.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*c.cert}, MinVersion: tls.VersionTLS12}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		listener.Close()
		return nil
	}
	c.listener = listener
	c.mu.Unlock()
	c.log.Info("console listening", zap.String("addr", listener.Addr().String()), zap.Bool("tls", c.cert != nil))

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			c.log.Warn("accept failed", zap.Error(err))
			continue
		}

		conn.SetDeadline(time.Now().Add(sessionTimeout))

		go func(conn net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				conn.Close()
			}()
			c.handleConnection(conn)
		}(conn)
	}
}

// Addr is the bound address, or nil before Listen has bound.
func (c *Console) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Stop closes the listener. Open connections run out on their deadlines.
func (c *Console) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.listener == nil {
		return nil
	}
	return c.listener.Close()
}

func (c *Console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Console) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(commandTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("connection dropped", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		switch strings.ToUpper(parts[0]) {
		case "PING":
			fmt.Fprintln(conn, "PONG")

		case "GET":
			if len(parts) < 2 {
				fmt.Fprintln(conn, "ERR usage: GET <path>")
				continue
			}
			val, err := c.doc.Get(parts[1])
			reply(conn, redact(parts[1], val), err)

		case "EXISTS":
			if len(parts) < 2 {
				fmt.Fprintln(conn, "ERR usage: EXISTS <path>")
				continue
			}
			fmt.Fprintln(conn, "OK", c.doc.Exists(parts[1]))

		case "DUMP":
			if len(parts) < 2 {
				root := engine.Select(c.doc, func(root map[string]any) map[string]any { return root })
				reply(conn, redact("/", root), nil)
				continue
			}
			p := schema.Partition(strings.ToUpper(parts[1]))
			if !p.Valid() {
				reply(conn, nil, ErrUnknownPartition)
				continue
			}
			path := engine.Join(string(p))
			val, err := c.doc.Get(path)
			if engine.IsNotFound(err) {
				val, err = map[string]any{}, nil
			}
			reply(conn, redact(path, val), err)

		case "QUIT":
			return

		default:
			fmt.Fprintln(conn, "ERR unknown command")
		}
	}
}

func reply(w io.Writer, val any, err error) {
	if err != nil {
		fmt.Fprintln(w, "ERR", err)
		return
	}
	res, err := json.Marshal(val)
	if err != nil {
		fmt.Fprintln(w, "ERR internal error")
		return
	}
	fmt.Fprintln(w, "OK", string(res))
}
