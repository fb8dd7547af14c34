package server

import "github.com/canonical/seatd/seat"

// Registry is the server front-end's list of seats (spec.md §4.5). A
// single "seat0" suffices for the in-scope design, but the registry is
// keyed by name so a future seat-naming policy (spec.md §9's open
// question) has somewhere to register additional seats without
// reshaping the front-end.
type Registry struct {
	seats map[string]*seat.Seat
}

// NewRegistry builds an empty seat registry.
func NewRegistry() *Registry {
	return &Registry{seats: make(map[string]*seat.Seat)}
}

// Add registers a seat under its own name.
func (r *Registry) Add(s *seat.Seat) {
	r.seats[s.Name] = s
}

// Get looks up a seat by name.
func (r *Registry) Get(name string) (*seat.Seat, bool) {
	s, ok := r.seats[name]
	return s, ok
}

// All returns every registered seat.
func (r *Registry) All() []*seat.Seat {
	out := make([]*seat.Seat, 0, len(r.seats))
	for _, s := range r.seats {
		out = append(out, s)
	}
	return out
}
