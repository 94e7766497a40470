package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// maxDatagram bounds a single perception message.
const maxDatagram = 64 * 1024

// UDPSocket is the subset of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates sockets. Tests substitute a mock.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// UDPListener applies one envelope per datagram.
type UDPListener struct {
	address string
	router  *Router
	factory UDPSocketFactory
}

func NewUDPListener(address string, router *Router, factory UDPSocketFactory) *UDPListener {
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	return &UDPListener{address: address, router: router, factory: factory}
}

// Start listens until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	log.Printf("[gateway] UDP listener started on %s", conn.LocalAddr())

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			log.Print("[gateway] UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		// short deadline so cancellation is noticed
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("[gateway] UDP read error: %v", err)
			continue
		}
		if err := l.router.HandleMessage(buffer[:n]); err != nil {
			logMessageError(fmt.Sprintf("udp %v", from), err)
		}
	}
}
