package link

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiiuae/mission_link/internal/mavlink"
)

func TestFrameReaderResynchronizes(t *testing.T) {
	codec := mavlink.NewCodec()
	frame, err := codec.Encode(245, 190, mavlink.NewMissionCurrent(7))
	require.NoError(t, err)

	// Line noise before the frame, then a second frame back to back.
	frame2, err := codec.Encode(245, 190, mavlink.NewMissionItemReached(7))
	require.NoError(t, err)

	stream := append([]byte{0x00, 0x42, 0x13}, frame...)
	stream = append(stream, frame2...)

	fr := newFrameReader(bytes.NewReader(stream))

	got, err := fr.next()
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	got, err = fr.next()
	require.NoError(t, err)
	assert.Equal(t, frame2, got)

	_, err = fr.next()
	assert.Error(t, err)
}
