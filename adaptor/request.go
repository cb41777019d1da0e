package adaptor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bbockelm/XrdAdaptor/accounting"
	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
)

// ClientRequest is one caller-visible read: either a scalar read into a
// single buffer or a vector read. It is handed to exactly one Source,
// completes exactly once, and keeps itself alive through a self reference
// while the wire layer holds it.
type ClientRequest struct {
	manager *RequestManager
	id      string

	// Scalar variant; into is nil for the vector variant.
	into []byte
	off  int64
	// Vector variant.
	iolist []xrd.PosBuffer

	future *Future

	mu       sync.Mutex
	self     *ClientRequest
	src      *Source
	sourceID string
	watch    accounting.Watch
}

func newScalarRequest(m *RequestManager, into []byte, off int64) *ClientRequest {
	return &ClientRequest{
		manager: m,
		id:      uuid.NewString(),
		into:    into,
		off:     off,
		future:  newFuture(),
	}
}

func newVectorRequest(m *RequestManager, iolist []xrd.PosBuffer) *ClientRequest {
	return &ClientRequest{
		manager: m,
		id:      uuid.NewString(),
		iolist:  iolist,
		future:  newFuture(),
	}
}

// Size returns how many bytes the request covers.
func (c *ClientRequest) Size() int64 {
	if c.into != nil {
		return int64(len(c.into))
	}
	return xrd.SizeOf(c.iolist)
}

// Future returns the request's one-shot completion.
func (c *ClientRequest) Future() *Future {
	return c.future
}

// SourceID returns the id of the source the request was dispatched to, or
// the empty string before dispatch.
func (c *ClientRequest) SourceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceID
}

// String converts the request for debug output.
func (c *ClientRequest) String() string {
	return "req " + c.id[:8]
}

// bind records the owning source and quality watch at dispatch time and
// pins the request to itself while the wire layer holds it.
func (c *ClientRequest) bind(s *Source, watch accounting.Watch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = c
	c.src = s
	c.sourceID = s.ID()
	c.watch = watch
}

// HandleResponse implements xrdclient.ResponseHandler. It runs on a
// wire-owned goroutine.
func (c *ClientRequest) HandleResponse(status *xrdclient.Status, response *xrdclient.Response) {
	c.mu.Lock()
	watch := c.watch
	c.watch = nil
	src := c.src
	c.mu.Unlock()

	var n int64
	if status.IsOK() && response != nil {
		if c.into != nil {
			if response.Chunk != nil {
				n = response.Chunk.Length
			}
		} else {
			n = response.VectorLength
		}
	}

	if watch != nil {
		watch.Stop(n, !status.IsOK())
	}
	if src != nil {
		src.finish(c)
	}

	if status.IsOK() {
		c.future.resolve(n, nil)
	} else {
		err := &xrd.ReadError{
			Name:          c.manager.Filename(),
			Status:        status.String(),
			ErrNo:         status.ErrNo,
			Code:          status.Code,
			ActiveSources: c.manager.ActiveSourceNames(),
			Err:           status,
		}
		c.manager.requestFailure(src, status)
		c.future.resolve(0, err)
	}

	// Drop the self reference last; the wire layer no longer holds us and
	// the request may be collected as soon as the caller lets go of the
	// future.
	c.mu.Lock()
	c.self = nil
	c.mu.Unlock()
}
