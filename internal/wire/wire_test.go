package wire_test

import (
	"testing"

	"github.com/canonical/seatd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{Opcode: wire.OpOpenDevice, Size: 42}
	buf := h.Encode()
	require.Len(t, buf, wire.HeaderSize)

	got := wire.DecodeHeader(buf)
	assert.Equal(t, h, got)
}

func TestEncodeDecodeI32(t *testing.T) {
	msg := wire.EncodeI32(wire.OpCloseDevice, 7)
	h := wire.DecodeHeader(msg[:wire.HeaderSize])
	assert.Equal(t, wire.OpCloseDevice, h.Opcode)

	v, err := wire.DecodeI32(msg[wire.HeaderSize:])
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)
}

func TestEncodeDecodeString(t *testing.T) {
	msg := wire.EncodeString(wire.OpSeatOpened, "seat0")
	h := wire.DecodeHeader(msg[:wire.HeaderSize])
	assert.Equal(t, wire.OpSeatOpened, h.Opcode)
	assert.EqualValues(t, len(msg)-wire.HeaderSize, h.Size)

	name, err := wire.DecodeString(msg[wire.HeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, "seat0", name)
}

func TestEncodeError(t *testing.T) {
	msg := wire.EncodeError(unix.ENOENT)
	errno, err := wire.DecodeError(msg[wire.HeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, unix.ENOENT, errno)
}

func TestValidatePayloadSize(t *testing.T) {
	assert.NoError(t, wire.ValidatePayloadSize(wire.OpOpenSeat, 0))
	assert.Error(t, wire.ValidatePayloadSize(wire.OpOpenSeat, 1))
	assert.Error(t, wire.ValidatePayloadSize(wire.OpCloseDevice, 3))
	assert.NoError(t, wire.ValidatePayloadSize(wire.OpCloseDevice, 4))

	// Oversize OPEN_DEVICE path is a framing error.
	assert.Error(t, wire.ValidatePayloadSize(wire.OpOpenDevice, wire.MaxPathLen+3))

	var unknown wire.Opcode = 9999
	assert.Error(t, wire.ValidatePayloadSize(unknown, 0))
}
