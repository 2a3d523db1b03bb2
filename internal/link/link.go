// Package link moves raw MAVLink frames over serial or UDP. It knows just
// enough of the v2 framing to cut the byte stream into whole frames; decoding
// lives in the mavlink package.
package link

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

const (
	magicV2     = 0xFD
	headerLenV2 = 10
)

// Link is one endpoint carrying whole frames in both directions. Receive
// blocks until a frame arrives or the link closes.
type Link interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	Close() error
}

// frameReader cuts a byte stream into v2 frames, resynchronizing on the
// magic byte after garbage.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

func (fr *frameReader) next() ([]byte, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "reading frame magic")
		}
		if b != magicV2 {
			continue
		}

		payloadLen, err := fr.r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "reading frame length")
		}

		frame := make([]byte, headerLenV2+int(payloadLen)+2)
		frame[0] = magicV2
		frame[1] = payloadLen
		if _, err := io.ReadFull(fr.r, frame[2:]); err != nil {
			return nil, errors.Wrap(err, "reading frame body")
		}
		return frame, nil
	}
}
