package seat

// ClientState is the lifecycle state of a Client, per spec.md §3.
type ClientState int

const (
	StateNew ClientState = iota
	StateActive
	StatePendingDisable
	StateDisabled
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateActive:
		return "ACTIVE"
	case StatePendingDisable:
		return "PENDING_DISABLE"
	case StateDisabled:
		return "DISABLED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Notifier delivers the two asynchronous seat events to a client's
// connection. The seat package depends only on this interface so it
// never needs to know about the wire codec or the socket.
type Notifier interface {
	SendEnableSeat() error
	SendDisableSeat() error
}

// Client is one attached session on a seat: peer credentials, an
// ordered device ledger, and lifecycle state. A Client is single-use:
// once Closed it can never reattach (spec.md §3).
type Client struct {
	Pid, Uid, Gid int32

	seat    *Seat
	state   ClientState
	session int32 // -1 until attached

	devices []*Device

	notifier Notifier
}

// NewClient constructs an unattached client carrying the given peer
// credentials and event notifier.
func NewClient(pid, uid, gid int32, notifier Notifier) *Client {
	return &Client{
		Pid:      pid,
		Uid:      uid,
		Gid:      gid,
		state:    StateNew,
		session:  -1,
		notifier: notifier,
	}
}

// State returns the client's current lifecycle state.
func (c *Client) State() ClientState { return c.state }

// Session returns the client's session id: -1 until attached, then
// either the VT number (vt-bound seats) or a seat-local sequence
// number (non-vt-bound seats).
func (c *Client) Session() int32 { return c.session }

// Seat returns the seat this client is attached to, or nil.
func (c *Client) Seat() *Seat { return c.seat }

// Devices returns the client's open device ledger in insertion order.
// The slice is owned by the client; callers must not mutate it.
func (c *Client) Devices() []*Device { return c.devices }

// Device looks up one of the client's open devices by id.
func (c *Client) Device(id int32) (*Device, bool) {
	for _, d := range c.devices {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}
