package transport

import (
	"sync"
	"sync/atomic"
)

// payloadCell is the shared, reference-counted backing store of a payload.
type payloadCell struct {
	data []byte
	refs int32
}

// Payload is a handle onto a pooled buffer. Copies made through Share
// reference the same cell; Release returns the cell to the pool once the
// last reference drops.
type Payload struct {
	pool *PayloadPool
	cell *payloadCell
}

// Bytes returns the payload content. The returned slice must not be
// mutated while other references exist.
func (p Payload) Bytes() []byte {
	if p.cell == nil {
		return nil
	}
	return p.cell.data
}

// Len returns the payload length.
func (p Payload) Len() int {
	return len(p.Bytes())
}

// Release drops this reference. The cell is reclaimed when the last
// reference is released.
func (p Payload) Release() {
	if p.cell == nil || p.pool == nil {
		return
	}
	if atomic.AddInt32(&p.cell.refs, -1) == 0 {
		p.pool.reclaim(p.cell)
	}
}

// PayloadPool allocates and tracks reference-counted payload buffers shared
// between readers, writers and the application.
type PayloadPool struct {
	mu       sync.Mutex
	live     map[*payloadCell]struct{}
	acquired uint64
	released uint64
}

// NewPayloadPool creates an empty payload pool.
func NewPayloadPool() *PayloadPool {
	return &PayloadPool{live: make(map[*payloadCell]struct{})}
}

// GetPayload copies data into a fresh pooled buffer with one reference.
func (pp *PayloadPool) GetPayload(data []byte) Payload {
	cell := &payloadCell{
		data: append([]byte(nil), data...),
		refs: 1,
	}
	pp.mu.Lock()
	pp.live[cell] = struct{}{}
	pp.acquired++
	pp.mu.Unlock()
	return Payload{pool: pp, cell: cell}
}

// Share takes an additional reference on an existing payload.
func (pp *PayloadPool) Share(p Payload) Payload {
	if p.cell == nil {
		return p
	}
	atomic.AddInt32(&p.cell.refs, 1)
	return Payload{pool: pp, cell: p.cell}
}

// InUse returns the number of live cells, for leak assertions.
func (pp *PayloadPool) InUse() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.live)
}

func (pp *PayloadPool) reclaim(cell *payloadCell) {
	pp.mu.Lock()
	delete(pp.live, cell)
	pp.released++
	pp.mu.Unlock()
}
