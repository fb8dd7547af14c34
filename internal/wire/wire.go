// Package wire implements the seatd framed message codec: a fixed 4-byte
// header followed by a fixed or u16-length-prefixed payload per opcode,
// little-endian on the wire regardless of host architecture.
package wire

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Opcode identifies a message type. Client-to-server opcodes are 1-6;
// server-to-client opcodes start at 101. The numeric values are not
// load-bearing, only agreement between the two codec implementations is.
type Opcode uint16

const (
	OpOpenSeat      Opcode = 1
	OpCloseSeat     Opcode = 2
	OpOpenDevice    Opcode = 3
	OpCloseDevice   Opcode = 4
	OpSwitchSession Opcode = 5
	OpDisableSeat   Opcode = 6

	OpError             Opcode = 101
	OpSeatOpened        Opcode = 102
	OpSeatClosed        Opcode = 103
	OpDeviceOpened      Opcode = 104
	OpDeviceClosed      Opcode = 105
	OpServerDisableSeat Opcode = 106
	OpServerEnableSeat  Opcode = 107
)

func (o Opcode) String() string {
	switch o {
	case OpOpenSeat:
		return "OPEN_SEAT"
	case OpCloseSeat:
		return "CLOSE_SEAT"
	case OpOpenDevice:
		return "OPEN_DEVICE"
	case OpCloseDevice:
		return "CLOSE_DEVICE"
	case OpSwitchSession:
		return "SWITCH_SESSION"
	case OpDisableSeat:
		return "DISABLE_SEAT"
	case OpError:
		return "ERROR"
	case OpSeatOpened:
		return "SEAT_OPENED"
	case OpSeatClosed:
		return "SEAT_CLOSED"
	case OpDeviceOpened:
		return "DEVICE_OPENED"
	case OpDeviceClosed:
		return "DEVICE_CLOSED"
	case OpServerDisableSeat:
		return "DISABLE_SEAT(event)"
	case OpServerEnableSeat:
		return "ENABLE_SEAT(event)"
	default:
		return fmt.Sprintf("OPCODE(%d)", uint16(o))
	}
}

// HeaderSize is the fixed size, in bytes, of every message header.
const HeaderSize = 4

// MaxPathLen is the largest OPEN_DEVICE path payload accepted. A larger
// path is a framing error: the connection is terminated without a reply.
const MaxPathLen = 256

// Header is the {opcode, size} pair that precedes every message payload.
type Header struct {
	Opcode Opcode
	Size   uint16
}

// Encode serializes h as 4 little-endian bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Opcode))
	binary.LittleEndian.PutUint16(buf[2:4], h.Size)
	return buf
}

// DecodeHeader parses the first HeaderSize bytes of buf. Callers must
// ensure len(buf) >= HeaderSize.
func DecodeHeader(buf []byte) Header {
	return Header{
		Opcode: Opcode(binary.LittleEndian.Uint16(buf[0:2])),
		Size:   binary.LittleEndian.Uint16(buf[2:4]),
	}
}

// ErrFraming marks a message malformed in a way that must terminate the
// connection with no reply: bad size, unknown opcode, oversize path.
type ErrFraming struct {
	Reason string
}

func (e *ErrFraming) Error() string { return "protocol framing error: " + e.Reason }

// Message is a fully decoded message: a header plus its raw payload.
type Message struct {
	Header  Header
	Payload []byte
}

// Encode serializes a message with the given opcode and payload.
func Encode(op Opcode, payload []byte) []byte {
	h := Header{Opcode: op, Size: uint16(len(payload))}
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, h.Encode()...)
	buf = append(buf, payload...)
	return buf
}

// EncodeEmpty serializes a zero-payload message.
func EncodeEmpty(op Opcode) []byte {
	return Encode(op, nil)
}

// EncodeI32 serializes a message whose payload is a single little-endian
// int32 (used for device ids and session numbers).
func EncodeI32(op Opcode, v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return Encode(op, buf)
}

// DecodeI32 reads a single little-endian int32 payload.
func DecodeI32(payload []byte) (int32, error) {
	if len(payload) != 4 {
		return 0, &ErrFraming{Reason: "expected 4-byte int32 payload"}
	}
	return int32(binary.LittleEndian.Uint32(payload)), nil
}

// EncodeString serializes a message whose payload is a u16 length prefix
// followed by that many bytes (used for paths and seat names).
func EncodeString(op Opcode, s string) []byte {
	buf := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(s)))
	copy(buf[2:], s)
	return Encode(op, buf)
}

// DecodeString reads a u16-length-prefixed string payload.
func DecodeString(payload []byte) (string, error) {
	if len(payload) < 2 {
		return "", &ErrFraming{Reason: "truncated length-prefixed string"}
	}
	n := binary.LittleEndian.Uint16(payload[0:2])
	if int(n) != len(payload)-2 {
		return "", &ErrFraming{Reason: "length-prefixed string size mismatch"}
	}
	return string(payload[2 : 2+n]), nil
}

// EncodeError serializes an ERROR reply carrying a POSIX errno value.
func EncodeError(errno unix.Errno) []byte {
	return EncodeI32(OpError, int32(errno))
}

// DecodeError reads an ERROR payload back into an errno.
func DecodeError(payload []byte) (unix.Errno, error) {
	v, err := DecodeI32(payload)
	if err != nil {
		return 0, err
	}
	return unix.Errno(v), nil
}

// ValidatePayloadSize checks a fixed-size opcode's declared size against
// its expected layout, returning an ErrFraming on mismatch. Variable
// length opcodes (OPEN_DEVICE, SEAT_OPENED) are validated by their own
// Decode function instead.
func ValidatePayloadSize(op Opcode, size uint16) error {
	switch op {
	case OpOpenSeat, OpCloseSeat, OpDisableSeat, OpSeatClosed, OpServerDisableSeat, OpServerEnableSeat:
		if size != 0 {
			return &ErrFraming{Reason: fmt.Sprintf("%s expects empty payload, got %d bytes", op, size)}
		}
	case OpCloseDevice, OpSwitchSession, OpError, OpDeviceOpened, OpDeviceClosed:
		if size != 4 {
			return &ErrFraming{Reason: fmt.Sprintf("%s expects a 4-byte payload, got %d bytes", op, size)}
		}
	case OpOpenDevice, OpSeatOpened:
		if size < 2 {
			return &ErrFraming{Reason: fmt.Sprintf("%s expects at least a 2-byte length prefix", op)}
		}
		if size > MaxPathLen+2 {
			return &ErrFraming{Reason: fmt.Sprintf("%s payload %d exceeds maximum", op, size)}
		}
	default:
		return &ErrFraming{Reason: fmt.Sprintf("unknown opcode %d", uint16(op))}
	}
	return nil
}
