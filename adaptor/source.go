package adaptor

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/bbockelm/XrdAdaptor/accounting"
	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
)

// Source wraps one open file handle on one data server. It dispatches
// requests to the wire, tracks them while in flight and owns the server's
// quality score. A source knows nothing about its peers or about request
// splitting.
type Source struct {
	id string
	fh xrdclient.File
	qm accounting.Meter

	mu       sync.Mutex
	inflight map[string]*ClientRequest
	closed   bool
}

func newSource(now time.Time, fh xrdclient.File, clock timeutil.Clock) *Source {
	return &Source{
		id:       fh.DataServer(),
		fh:       fh,
		qm:       accounting.NewQuality(clock, fh.DataServer()),
		inflight: make(map[string]*ClientRequest),
	}
}

// ID returns the server identity reported by the wire layer after open.
func (s *Source) ID() string {
	return s.id
}

// String converts the source for debug output.
func (s *Source) String() string {
	return s.id
}

// Quality returns a snapshot of the server's score; lower is better.
func (s *Source) Quality() uint64 {
	return s.qm.Get()
}

// FileHandle returns the wire handle for metadata operations. Stat calls
// on it may run concurrently with I/O.
func (s *Source) FileHandle() xrdclient.File {
	return s.fh
}

// Dispatch hands a request to the wire layer and returns immediately. The
// request is pinned, watched and recorded in the in-flight set before the
// wire sees it; a submission failure is converted into a completion so the
// request still resolves exactly once.
func (s *Source) Dispatch(c *ClientRequest) {
	c.bind(s, s.qm.StartWatch())
	s.mu.Lock()
	s.inflight[c.id] = c
	s.mu.Unlock()

	xrd.Debugf(s, "dispatching %v (%d bytes), quality %d", c, c.Size(), s.qm.Get())

	var err error
	if c.into != nil {
		err = s.fh.Read(c.off, c.into, c)
	} else {
		err = s.fh.VectorRead(c.iolist, c)
	}
	if err != nil {
		c.HandleResponse(xrdclient.NewStatusError(xrdclient.StLocalError, 0, "submit: %v", err), nil)
	}
}

// finish removes a completed request from the in-flight set.
func (s *Source) finish(c *ClientRequest) {
	s.mu.Lock()
	delete(s.inflight, c.id)
	s.mu.Unlock()
}

// Inflight returns how many requests the wire layer currently holds.
func (s *Source) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Close closes the wire handle. A failure is logged and also returned, so
// RequestManager.Close can report it; closing twice is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.fh.Close(); err != nil {
		xrd.Warnf(s, "close failed: %v", err)
		return err
	}
	return nil
}
