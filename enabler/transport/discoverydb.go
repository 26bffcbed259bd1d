package transport

import (
	"sync"
)

// EndpointHandle is the opaque token returned when a dynamic endpoint is
// created; it is required to remove that endpoint again.
type EndpointHandle uint64

// Endpoint is a dynamic endpoint registered in the discovery database.
type Endpoint struct {
	Handle        EndpointHandle
	Topic         DdsTopic
	ParticipantID string
}

// EndpointListener observes endpoint insertions.
type EndpointListener func(Endpoint)

// DiscoveryDatabase tracks dynamic endpoints and notifies listeners of
// insertions. Listener notification happens on a dedicated goroutine per
// insertion, mirroring the bus's discovery thread.
type DiscoveryDatabase struct {
	mu        sync.Mutex
	next      EndpointHandle
	endpoints map[EndpointHandle]Endpoint
	listeners []EndpointListener
}

// NewDiscoveryDatabase creates an empty discovery database.
func NewDiscoveryDatabase() *DiscoveryDatabase {
	return &DiscoveryDatabase{endpoints: make(map[EndpointHandle]Endpoint)}
}

// OnEndpoint registers a listener for endpoint insertions.
func (db *DiscoveryDatabase) OnEndpoint(l EndpointListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.listeners = append(db.listeners, l)
}

// AddEndpoint simulates a dynamic endpoint for a topic and returns its
// handle. Listeners are notified asynchronously.
func (db *DiscoveryDatabase) AddEndpoint(topic DdsTopic, participantID string) EndpointHandle {
	db.mu.Lock()
	db.next++
	ep := Endpoint{Handle: db.next, Topic: topic, ParticipantID: participantID}
	db.endpoints[ep.Handle] = ep
	listeners := make([]EndpointListener, len(db.listeners))
	copy(listeners, db.listeners)
	db.mu.Unlock()

	go func() {
		for _, l := range listeners {
			l(ep)
		}
	}()
	return ep.Handle
}

// RemoveEndpoint removes a previously created endpoint.
func (db *DiscoveryDatabase) RemoveEndpoint(h EndpointHandle) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.endpoints[h]; !ok {
		return false
	}
	delete(db.endpoints, h)
	return true
}

// Endpoints returns a snapshot of the registered endpoints.
func (db *DiscoveryDatabase) Endpoints() []Endpoint {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]Endpoint, 0, len(db.endpoints))
	for _, ep := range db.endpoints {
		out = append(out, ep)
	}
	return out
}
