package link

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

const maxDatagram = 512

// udpLink is datagram-oriented: one datagram carries one frame. In listen
// mode the peer address is learned from inbound datagrams (the sender of the
// most recent one), which is how autopilots announce themselves on the
// standard GCS port.
type udpLink struct {
	conn *net.UDPConn

	mu   sync.Mutex
	peer *net.UDPAddr
}

// DialUDP connects to a known vehicle endpoint.
func DialUDP(address string) (Link, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", address)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", address)
	}
	return &udpLink{conn: conn, peer: addr}, nil
}

// ListenUDP waits for the vehicle to send first, e.g. on :14550.
func ListenUDP(address string) (Link, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", address)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", address)
	}
	return &udpLink{conn: conn}, nil
}

func (u *udpLink) Send(frame []byte) error {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()

	if peer == nil {
		return errors.New("udp: no peer yet")
	}

	var err error
	if u.conn.RemoteAddr() != nil {
		_, err = u.conn.Write(frame)
	} else {
		_, err = u.conn.WriteToUDP(frame, peer)
	}
	return errors.Wrap(err, "udp write")
}

func (u *udpLink) Receive() ([]byte, error) {
	buf := make([]byte, maxDatagram)
	for {
		var n int
		var err error
		if u.conn.RemoteAddr() != nil {
			n, err = u.conn.Read(buf)
		} else {
			var from *net.UDPAddr
			n, from, err = u.conn.ReadFromUDP(buf)
			if err == nil {
				u.mu.Lock()
				u.peer = from
				u.mu.Unlock()
			}
		}
		if err != nil {
			return nil, errors.Wrap(err, "udp read")
		}
		if n < headerLenV2+2 || buf[0] != magicV2 {
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		return frame, nil
	}
}

func (u *udpLink) Close() error {
	return u.conn.Close()
}
