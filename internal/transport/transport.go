package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/aman-bridge/internal/logging"
	"github.com/saviobatista/aman-bridge/internal/stats"
)

// State is the connection state of the server
type State int32

const (
	Listening State = iota
	Connected
	Closing
	Stopped
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrPeerClosed is the disconnect reason when the client closes the connection
	ErrPeerClosed = errors.New("connection closed by peer")
	// ErrSendTimeout is the disconnect reason when a message could not be written within the retry bound
	ErrSendTimeout = errors.New("send retries exhausted")
	// ErrStopped is the disconnect reason when the server is stopped
	ErrStopped = errors.New("server stopped")
)

const (
	readBufferSize = 4096
	maxLineLength  = 1 << 20
)

// Handler receives connection events. All calls are made from the receive loop.
type Handler interface {
	OnConnect(connID string)
	OnLine(line []byte)
	OnDisconnect(connID string, reason error)
}

// Config holds the server settings
type Config struct {
	Addr string

	// SendRetries bounds the would-block retries for a single message
	SendRetries int
	// RetryDelay is the sleep between two would-block retries
	RetryDelay time.Duration
	// WriteTimeout is the deadline of a single write attempt
	WriteTimeout time.Duration
	// PollInterval is the accept and read deadline used to observe shutdown
	PollInterval time.Duration

	Stats *stats.Stats
}

// Server is a single-client TCP server streaming newline-delimited messages
type Server struct {
	cfg     Config
	handler Handler
	log     *logging.Throttled

	state    atomic.Int32
	stopping atomic.Bool

	lnMu      sync.Mutex
	ln        *net.TCPListener
	boundAddr string

	// mu guards the queue and the active connection
	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	conn    net.Conn
	connID  string
	sendErr error

	// skipping is set while the rest of an oversized line is dropped; receive loop only
	skipping bool

	wg   sync.WaitGroup
	done chan struct{}

	errMu sync.Mutex
	err   error
}

// New creates a server; Start binds it
func New(cfg Config, handler Handler) *Server {
	if cfg.SendRetries <= 0 {
		cfg.SendRetries = 50
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     logging.NewThrottled(fmt.Sprintf("[transport %s] ", cfg.Addr), 5*time.Second),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.state.Store(int32(Stopped))
	return s
}

// Start binds the listening socket and starts the accept/receive and sender loops
func (s *Server) Start() error {
	ln, err := listen(s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.lnMu.Lock()
	s.ln = ln
	s.boundAddr = ln.Addr().String()
	s.lnMu.Unlock()

	s.state.Store(int32(Listening))
	log.Printf("Listening for clients on %s", s.boundAddr)

	s.wg.Add(2)
	go s.acceptLoop()
	go s.sendLoop()
	return nil
}

func listen(addr string) (*net.TCPListener, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

// Stop closes all sockets, wakes the loops and waits for them to exit
func (s *Server) Stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	s.state.Store(int32(Stopped))

	s.lnMu.Lock()
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
	s.lnMu.Unlock()

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

// Enqueue appends a message to the outbound queue. It is dropped when no client is connected.
func (s *Server) Enqueue(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.State() != Connected {
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncrementMessagesDropped()
		}
		return false
	}

	s.queue = append(s.queue, msg)
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementMessagesEnqueued()
	}
	s.cond.Signal()
	return true
}

// State returns the current connection state
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the address the server is bound to
func (s *Server) Addr() string {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	return s.boundAddr
}

// ConnectionID returns the id of the active connection, or "" when none
func (s *Server) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// QueueLen returns the number of messages waiting to be sent
func (s *Server) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Done is closed when the accept loop has exited, after Stop or a failed rebind
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the accept loop, if any
func (s *Server) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Server) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// setState changes the state unless the server is stopping
func (s *Server) setState(state State) {
	if s.stopping.Load() {
		return
	}
	s.state.Store(int32(state))
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	defer close(s.done)
	defer s.closeListener()

	for {
		if s.stopping.Load() {
			return
		}

		s.lnMu.Lock()
		ln := s.ln
		s.lnMu.Unlock()
		if ln == nil {
			return
		}

		if err := ln.SetDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil && !s.stopping.Load() {
			s.log.Printf("failed to set accept deadline: %v", err)
		}
		conn, err := ln.AcceptTCP()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if s.stopping.Load() {
				return
			}
			log.Printf("Accept failed on %s: %v", s.boundAddr, err)
			s.setErr(fmt.Errorf("failed to accept: %w", err))
			return
		}

		// One client at a time: stop listening until this connection is released
		s.lnMu.Lock()
		ln.Close()
		if s.ln == ln {
			s.ln = nil
		}
		s.lnMu.Unlock()

		s.serve(conn)

		if s.stopping.Load() {
			return
		}

		ln, err = listen(s.boundAddr)
		if err != nil {
			log.Printf("Failed to listen again on %s: %v", s.boundAddr, err)
			s.setErr(fmt.Errorf("failed to listen on %s: %w", s.boundAddr, err))
			s.state.Store(int32(Stopped))
			return
		}
		// Stop may have run while listen was in progress and found no listener to close
		s.lnMu.Lock()
		if s.stopping.Load() {
			s.lnMu.Unlock()
			ln.Close()
			return
		}
		s.ln = ln
		s.lnMu.Unlock()
		s.setState(Listening)
	}
}

func (s *Server) closeListener() {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
}

func (s *Server) serve(conn *net.TCPConn) {
	configureTCP(conn)
	connID := uuid.New().String()

	s.mu.Lock()
	s.conn = conn
	s.connID = connID
	s.queue = nil
	s.sendErr = nil
	s.mu.Unlock()
	s.skipping = false

	s.setState(Connected)
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementConnectionsAccepted()
	}
	log.Printf("Client %s connected from %s (connection %s)", conn.RemoteAddr(), s.boundAddr, connID)

	s.handler.OnConnect(connID)

	// Wake the sender for anything queued by OnConnect
	s.mu.Lock()
	s.cond.Signal()
	s.mu.Unlock()

	reason := s.receive(conn)
	s.disconnect(conn, connID, reason)
}

func configureTCP(conn *net.TCPConn) {
	if err := conn.SetKeepAlive(true); err != nil {
		log.Printf("Warning: failed to set keepalive: %v", err)
	}
	if err := conn.SetKeepAlivePeriod(10 * time.Second); err != nil {
		log.Printf("Warning: failed to set keepalive period: %v", err)
	}
	if err := conn.SetNoDelay(true); err != nil {
		log.Printf("Warning: failed to set no delay: %v", err)
	}
}

// receive reads until the connection ends and returns the reason
func (s *Server) receive(conn net.Conn) error {
	buffer := make([]byte, readBufferSize)
	var pending []byte

	for {
		if s.stopping.Load() {
			return ErrStopped
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil {
			return err
		}
		n, err := conn.Read(buffer)
		if n > 0 {
			pending = append(pending, buffer[:n]...)
			pending = s.dispatchLines(pending)
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if s.stopping.Load() {
				return ErrStopped
			}
			if errors.Is(err, io.EOF) {
				return ErrPeerClosed
			}
			return err
		}
	}
}

// dispatchLines hands every complete line to the handler and returns the unterminated rest
func (s *Server) dispatchLines(pending []byte) []byte {
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(pending[:i], []byte{'\r'})
		pending = pending[i+1:]
		if s.skipping {
			// Tail of an oversized line
			s.skipping = false
			continue
		}
		if len(line) == 0 {
			continue
		}
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncrementLinesReceived()
		}
		s.handler.OnLine(append([]byte(nil), line...))
	}

	if len(pending) > maxLineLength {
		s.log.Printf("discarding %d bytes without a line terminator", len(pending))
		s.skipping = true
		return nil
	}
	// Compact so the buffer does not grow with consumed lines
	return append([]byte(nil), pending...)
}

func (s *Server) disconnect(conn net.Conn, connID string, reason error) {
	s.setState(Closing)
	conn.Close()

	s.mu.Lock()
	if s.sendErr != nil {
		reason = s.sendErr
	}
	cleared := len(s.queue)
	s.queue = nil
	s.conn = nil
	s.connID = ""
	s.sendErr = nil
	s.mu.Unlock()

	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementDisconnects()
		s.cfg.Stats.AddMessagesCleared(cleared)
	}
	log.Printf("Client disconnected (connection %s): %v, %d queued messages discarded", connID, reason, cleared)

	s.handler.OnDisconnect(connID, reason)
}

func (s *Server) sendLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for !s.stopping.Load() && (len(s.queue) == 0 || s.conn == nil) {
			s.cond.Wait()
		}
		if s.stopping.Load() {
			s.mu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		conn := s.conn
		s.mu.Unlock()

		if err := s.send(conn, msg); err != nil {
			s.failSend(conn, err)
			continue
		}
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncrementMessagesSent()
		}
	}
}

// send writes one message and its terminator, resuming partial writes
func (s *Server) send(conn net.Conn, msg []byte) error {
	data := make([]byte, 0, len(msg)+1)
	data = append(data, msg...)
	data = append(data, '\n')

	retries := 0
	for written := 0; written < len(data); {
		if s.stopping.Load() {
			return ErrStopped
		}
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
		n, err := conn.Write(data[written:])
		written += n
		if err == nil {
			continue
		}
		if !isTimeout(err) {
			return err
		}

		retries++
		if retries > s.cfg.SendRetries {
			return ErrSendTimeout
		}
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncrementSendRetries()
		}
		s.log.Printf("send would block, retry %d/%d (%d of %d bytes written)", retries, s.cfg.SendRetries, written, len(data))
		time.Sleep(s.cfg.RetryDelay)
	}
	return nil
}

// failSend drops the rest of the queue and closes the connection; the receive loop
// observes the closed socket and completes the disconnect
func (s *Server) failSend(conn net.Conn, err error) {
	if errors.Is(err, ErrStopped) {
		return
	}

	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.sendErr = err
		if s.cfg.Stats != nil {
			s.cfg.Stats.AddMessagesCleared(len(s.queue))
		}
		s.queue = nil
		s.state.CompareAndSwap(int32(Connected), int32(Closing))
	}
	s.mu.Unlock()

	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementSendFailures()
	}
	log.Printf("Send failed, dropping connection: %v", err)
	conn.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
