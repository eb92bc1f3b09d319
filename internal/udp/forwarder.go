// Package udp forwards recorded observations as JSON datagrams, one per
// observation, for live map clients on the local network.
package udp

import (
	"encoding/json"
	"fmt"
	"net"

	"kismet-baro/internal/record"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

type Forwarder struct {
	dest string
	conn udpConn
}

func NewForwarder(dest string) (*Forwarder, error) {
	return newForwarder(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newForwarder(dest string, resolve resolveFunc, dial dialFunc) (*Forwarder, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", dest, err)
	}
	return &Forwarder{dest: dest, conn: conn}, nil
}

func (f *Forwarder) Dest() string { return f.dest }

// Notify sends obs as a single newline-terminated JSON datagram.
func (f *Forwarder) Notify(obs record.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("udp: marshal: %w", err)
	}
	if _, err := f.conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("udp: send to %s: %w", f.dest, err)
	}
	return nil
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
