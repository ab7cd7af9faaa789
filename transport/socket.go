package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// dialError marks a failure to reach the remote at all, as opposed to a
// failed write on an established connection.
type dialError struct {
	err error
}

func (e *dialError) Error() string { return e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

const (
	// maxFrameSize bounds a single framed message on either transport.
	maxFrameSize = 16 * 1024 * 1024

	readPollInterval = 100 * time.Millisecond
	writeTimeout     = 5 * time.Second
	dialTimeout      = 5 * time.Second
)

// SocketEngine is a TCP/UDP implementation of Engine. TCP messages are
// framed with a 4-byte big-endian length prefix; a UDP datagram carries
// exactly one message. Bundle-Protocol endpoints have no socket here, so
// sends addressed to them resolve to ConnectionFailed.
type SocketEngine struct {
	observer Observer

	mu        sync.RWMutex
	listeners map[string]io.Closer // canonical endpoint -> listener
	udpConns  map[string]net.PacketConn
	clients   map[string]net.Conn // remote tcp addr -> connection

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSocketEngine creates an engine delivering events to obs.
func NewSocketEngine(obs Observer) *SocketEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketEngine{
		observer:  obs,
		listeners: make(map[string]io.Closer),
		udpConns:  make(map[string]net.PacketConn),
		clients:   make(map[string]net.Conn),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartListener implements Engine.
func (s *SocketEngine) StartListener(local Endpoint) {
	go func() {
		switch local.Kind {
		case KindTCP:
			s.startTCPListener(local)
		case KindUDP:
			s.startUDPListener(local)
		default:
			s.observer.OnTransportEvent(SocketError{
				Endpoint: local,
				Reason:   fmt.Sprintf("no socket support for %s endpoints", local.Kind),
			})
		}
	}()
}

// Send implements Engine.
func (s *SocketEngine) Send(local, remote Endpoint, data []byte, token string) {
	go func() {
		s.observer.OnTransportEvent(DataSending{Token: token, To: remote, Bytes: len(data)})

		var err error
		switch remote.Kind {
		case KindTCP:
			err = s.sendTCP(remote, data)
		case KindUDP:
			err = s.sendUDP(local, remote, data)
		default:
			s.observer.OnTransportEvent(ConnectionFailed{
				Endpoint: remote,
				Reason:   fmt.Sprintf("no socket support for %s endpoints", remote.Kind),
				Token:    token,
			})
			return
		}

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"remote": remote.String(),
				"token":  token,
				"error":  err,
			}).Warn("send failed")
			var de *dialError
			if errors.As(err, &de) {
				s.observer.OnTransportEvent(ConnectionFailed{Endpoint: remote, Reason: de.err.Error(), Token: token})
			} else {
				s.observer.OnTransportEvent(SendFailed{Endpoint: remote, Reason: err.Error(), Token: token})
			}
			return
		}

		s.observer.OnTransportEvent(DataSent{Token: token, To: remote, BytesSent: len(data)})
	}()
}

// Close shuts down all listeners and connections.
func (s *SocketEngine) Close() error {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		l.Close()
	}
	for _, c := range s.udpConns {
		c.Close()
	}
	for _, c := range s.clients {
		c.Close()
	}
	s.listeners = make(map[string]io.Closer)
	s.udpConns = make(map[string]net.PacketConn)
	s.clients = make(map[string]net.Conn)
	return nil
}

func (s *SocketEngine) startTCPListener(local Endpoint) {
	listener, err := net.Listen("tcp", local.Address)
	if err != nil {
		s.observer.OnTransportEvent(SocketError{Endpoint: local, Reason: err.Error()})
		return
	}

	// Report the resolved address so a ":0" listen is observable.
	bound := Endpoint{Kind: KindTCP, Address: listener.Addr().String()}

	s.mu.Lock()
	s.listeners[bound.String()] = listener
	s.mu.Unlock()

	s.observer.OnTransportEvent(ListenerStarted{Endpoint: bound})

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				s.observer.OnTransportEvent(SocketError{Endpoint: local, Reason: err.Error()})
			}
			return
		}
		remote := Endpoint{Kind: KindTCP, Address: conn.RemoteAddr().String()}
		s.observer.OnTransportEvent(Established{Remote: remote})
		go s.readStream(conn, remote)
	}
}

// readStream consumes length-prefixed frames until the connection drops.
func (s *SocketEngine) readStream(conn net.Conn, remote Endpoint) {
	defer conn.Close()
	defer s.observer.OnTransportEvent(Closed{Remote: remote})

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		var prefix [4]byte
		if _, err := io.ReadFull(conn, prefix[:]); err != nil {
			if err != io.EOF && s.ctx.Err() == nil {
				s.observer.OnTransportEvent(ReceiveFailed{Endpoint: remote, Reason: err.Error()})
			}
			return
		}
		size := binary.BigEndian.Uint32(prefix[:])
		if size == 0 || size > maxFrameSize {
			s.observer.OnTransportEvent(ReceiveFailed{
				Endpoint: remote,
				Reason:   fmt.Sprintf("invalid frame size %d", size),
			})
			return
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(conn, data); err != nil {
			s.observer.OnTransportEvent(ReceiveFailed{Endpoint: remote, Reason: err.Error()})
			return
		}

		s.observer.OnTransportEvent(DataReceived{Data: data, From: remote})
	}
}

func (s *SocketEngine) startUDPListener(local Endpoint) {
	conn, err := net.ListenPacket("udp", local.Address)
	if err != nil {
		s.observer.OnTransportEvent(SocketError{Endpoint: local, Reason: err.Error()})
		return
	}

	bound := Endpoint{Kind: KindUDP, Address: conn.LocalAddr().String()}

	s.mu.Lock()
	s.listeners[bound.String()] = conn
	s.udpConns[local.Address] = conn
	s.udpConns[bound.Address] = conn
	s.mu.Unlock()

	s.observer.OnTransportEvent(ListenerStarted{Endpoint: bound})

	buffer := make([]byte, 65536)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() == nil {
				s.observer.OnTransportEvent(ReceiveFailed{Endpoint: local, Reason: err.Error()})
			}
			return
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		s.observer.OnTransportEvent(DataReceived{
			Data: data,
			From: Endpoint{Kind: KindUDP, Address: addr.String()},
		})
	}
}

func (s *SocketEngine) sendTCP(remote Endpoint, data []byte) error {
	conn, err := s.getOrDial(remote)
	if err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.dropConnection(remote, conn)
		return err
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(data)))
	copy(frame[4:], data)

	if _, err := conn.Write(frame); err != nil {
		s.dropConnection(remote, conn)
		return err
	}
	return nil
}

// getOrDial reuses an open connection to the remote or dials a new one.
// A dialed connection also feeds inbound frames back through readStream.
func (s *SocketEngine) getOrDial(remote Endpoint) (net.Conn, error) {
	s.mu.RLock()
	conn, ok := s.clients[remote.Address]
	s.mu.RUnlock()
	if ok {
		return conn, nil
	}

	conn, err := net.DialTimeout("tcp", remote.Address, dialTimeout)
	if err != nil {
		return nil, &dialError{err: err}
	}

	// A concurrent send may have dialed the same remote in the meantime;
	// keep the cached connection and discard ours before it starts reading.
	s.mu.Lock()
	if existing, ok := s.clients[remote.Address]; ok {
		s.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	s.clients[remote.Address] = conn
	s.mu.Unlock()

	s.observer.OnTransportEvent(Established{Remote: remote})
	go s.readStream(conn, remote)
	return conn, nil
}

func (s *SocketEngine) dropConnection(remote Endpoint, conn net.Conn) {
	s.mu.Lock()
	delete(s.clients, remote.Address)
	s.mu.Unlock()
	conn.Close()
}

func (s *SocketEngine) sendUDP(local, remote Endpoint, data []byte) error {
	// Prefer the bound listener socket so replies reach our listener port.
	s.mu.RLock()
	conn, ok := s.udpConns[local.Address]
	s.mu.RUnlock()

	addr, err := net.ResolveUDPAddr("udp", remote.Address)
	if err != nil {
		return err
	}

	if ok {
		_, err = conn.WriteTo(data, addr)
		return err
	}

	ephemeral, err := net.DialTimeout("udp", remote.Address, dialTimeout)
	if err != nil {
		return &dialError{err: err}
	}
	defer ephemeral.Close()
	_, err = ephemeral.Write(data)
	return err
}
