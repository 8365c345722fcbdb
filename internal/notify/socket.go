package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// maxLine bounds one JSON line; records can carry large text.
const maxLine = 64 << 20

// client is one connected peer.
type client struct {
	id   string
	conn net.Conn
	mu   sync.Mutex // serializes writes from the handler and broadcasts
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(data)
	return err
}

// ErrAlreadyRunning is returned by Start when another daemon answers on
// the socket path.
var ErrAlreadyRunning = errors.New("another daemon is already running")

// SocketServer serves history requests and pushes history events.
type SocketServer struct {
	path     string
	history  History
	listener net.Listener
	clients  map[net.Conn]*client
	mu       sync.RWMutex
	done     chan struct{}
	stopOnce sync.Once

	// ctx bounds requests that wait on the daemon, such as copy.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSocketServer creates a new Unix socket server for h.
func NewSocketServer(path string, h History) *SocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketServer{
		path:    path,
		history: h,
		clients: make(map[net.Conn]*client),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Running reports whether a server is answering on path.
func Running(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Start begins listening for connections. A socket file left behind by a
// daemon that died is replaced; a live one is not.
func (s *SocketServer) Start() error {
	if Running(s.path) {
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, s.path)
	}
	os.Remove(s.path)

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	s.listener = listener

	// Set permissions so only the user can connect
	os.Chmod(s.path, 0700)

	go s.acceptLoop()
	return nil
}

// Stop shuts down the server.
func (s *SocketServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
			os.Remove(s.path)
		}

		s.mu.Lock()
		for conn := range s.clients {
			conn.Close()
		}
		s.clients = make(map[net.Conn]*client)
		s.mu.Unlock()
	})
}

// Broadcast sends a message to all connected clients.
func (s *SocketServer) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if err := c.send(data); err != nil {
			log.Printf("[socket] %s: broadcast failed: %v", c.id, err)
		}
	}
}

// RecordAdded broadcasts a new record.
func (s *SocketServer) RecordAdded(rec storage.Record) {
	s.Broadcast(Message{Type: TypeRecordAdded, OK: true, Record: &rec})
}

// RecordDeleted broadcasts a deletion.
func (s *SocketServer) RecordDeleted(id uint64) {
	s.Broadcast(Message{Type: TypeRecordDeleted, OK: true, ID: id})
}

// HistoryCleared broadcasts a clear.
func (s *SocketServer) HistoryCleared() {
	s.Broadcast(Message{Type: TypeHistoryCleared, OK: true})
}

// ClientCount returns the number of connected clients.
func (s *SocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *SocketServer) acceptLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Printf("[socket] Accept error: %v", err)
				continue
			}
		}

		c := &client{id: uuid.NewString(), conn: conn}
		s.mu.Lock()
		s.clients[conn] = c
		s.mu.Unlock()

		log.Printf("[socket] Client %s connected (%d total)", c.id, s.ClientCount())

		go s.handleClient(c)
	}
}

func (s *SocketServer) handleClient(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.conn)
		s.mu.Unlock()
		c.conn.Close()
		log.Printf("[socket] Client %s disconnected (%d total)", c.id, s.ClientCount())
	}()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var req Message
		var res Message
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			res = Message{Type: TypeResult, Error: "invalid request: " + err.Error()}
		} else {
			log.Printf("[socket] %s: %s", c.id, req.Type)
			res = handle(s.ctx, s.history, req)
		}

		data, err := json.Marshal(res)
		if err != nil {
			log.Printf("[socket] %s: failed to encode result: %v", c.id, err)
			continue
		}
		if err := c.send(append(data, '\n')); err != nil {
			return
		}
	}
}

// ErrNotConnected is returned when sending on a closed client.
var ErrNotConnected = errors.New("not connected")

// SocketClient connects to the daemon's socket server.
type SocketClient struct {
	conn      net.Conn
	connected bool
	onMessage func(Message)
	results   chan Message
	done      chan struct{}
	mu        sync.Mutex
	reqMu     sync.Mutex // one request in flight at a time
}

// NewSocketClient creates a new socket client.
func NewSocketClient() *SocketClient {
	return &SocketClient{
		results: make(chan Message, 1),
		done:    make(chan struct{}),
	}
}

// Connect connects to the socket server.
func (c *SocketClient) Connect(path string) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close closes the connection.
func (c *SocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.connected = false
	}
}

// IsConnected returns whether the client is connected.
func (c *SocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send sends a message to the server.
func (c *SocketClient) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return err
}

// Request sends req and waits for its result.
func (c *SocketClient) Request(ctx context.Context, req Message) (Message, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.Send(req); err != nil {
		return Message{}, err
	}

	select {
	case res, ok := <-c.results:
		if !ok {
			return Message{}, ErrNotConnected
		}
		if !res.OK {
			return res, errors.New(res.Error)
		}
		return res, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Done is closed when the connection to the server is lost or closed.
func (c *SocketClient) Done() <-chan struct{} {
	return c.done
}

// OnMessage sets the callback for pushed events. Set it before Connect.
func (c *SocketClient) OnMessage(callback func(Message)) {
	c.onMessage = callback
}

func (c *SocketClient) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Type == TypeResult {
			select {
			case c.results <- msg:
			case <-time.After(time.Second):
				// Nobody is waiting for this result.
			}
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	close(c.results)
	close(c.done)
}
