// Package udp sends telemetry frames to a ground station over UDP.
package udp

import (
	"fmt"
	"net"
	"sync/atomic"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster writes each frame as one datagram. Send and Stats may be
// called from different goroutines.
type Broadcaster struct {
	dest string
	conn udpConn

	packets atomic.Uint64
	bytes   atomic.Uint64
	errors  atomic.Uint64
}

// Stats counts datagrams written and failed writes since start.
type Stats struct {
	Dest    string `json:"dest"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
	Errors  uint64 `json:"errors"`
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Send(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	n, err := b.conn.Write(frame)
	if err != nil {
		b.errors.Add(1)
		return err
	}
	b.packets.Add(1)
	b.bytes.Add(uint64(n))
	return nil
}

func (b *Broadcaster) Stats() Stats {
	return Stats{
		Dest:    b.dest,
		Packets: b.packets.Load(),
		Bytes:   b.bytes.Load(),
		Errors:  b.errors.Load(),
	}
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
