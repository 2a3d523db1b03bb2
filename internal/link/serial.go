package link

import (
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

type serialLink struct {
	port   serial.Port
	frames *frameReader
}

// DialSerial opens a serial device carrying a MAVLink stream, 8N1.
func DialSerial(device string, baud int) (Link, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial device %s", device)
	}

	return &serialLink{port: port, frames: newFrameReader(port)}, nil
}

func (s *serialLink) Send(frame []byte) error {
	_, err := s.port.Write(frame)
	return errors.Wrap(err, "serial write")
}

func (s *serialLink) Receive() ([]byte, error) {
	return s.frames.next()
}

func (s *serialLink) Close() error {
	return s.port.Close()
}
