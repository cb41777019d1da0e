// Package adaptor multiplexes reads of one logical file over up to two
// data-server sources. It measures each source's running quality, splits
// vector reads across the pair in proportion to those scores, and swaps
// out underperforming servers by reopening the file through the redirector
// while telling it which hosts to avoid.
package adaptor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
)

// maxActiveSources bounds the set of sources eligible for new requests.
const maxActiveSources = 2

// RequestManager owns the source set for one logical file and routes every
// read through it.
//
// One coarse mutex guards the source lists and the reconsideration
// timestamps; it is never held across a dispatch to the wire layer.
type RequestManager struct {
	name   string
	flags  xrdclient.OpenFlags
	perms  xrdclient.AccessMode
	client xrdclient.Client
	opts   xrd.Options
	clock  timeutil.Clock

	mu        sync.Mutex
	active    []*Source
	inactive  []*Source
	disabled  []string
	opening   bool
	lastCheck time.Time
	nextCheck time.Time
	// When two sources are active, scalar reads alternate between them;
	// toggle names the side the next one lands on.
	toggle bool
	closed bool
}

// SourceStatus is one source's row in a Status report.
type SourceStatus struct {
	ID      string `json:"id"`
	Quality uint64 `json:"quality"`
}

// Status is a diagnostic snapshot of the manager.
type Status struct {
	Name     string         `json:"name"`
	Active   []SourceStatus `json:"active"`
	Inactive []SourceStatus `json:"inactive"`
	Disabled []string       `json:"disabled,omitempty"`
}

// Open opens the file at name through the client registered for its URL
// scheme, with default tuning.
func Open(ctx context.Context, name string, flags xrdclient.OpenFlags, perms xrdclient.AccessMode) (*RequestManager, error) {
	client, err := xrdclient.NewClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return OpenWithClient(ctx, client, name, flags, perms, xrd.DefaultOptions(), nil)
}

// OpenWithClient opens the file on an explicit client. The initial open is
// the one synchronous wait in the adaptor; a nil clock means wall time.
func OpenWithClient(ctx context.Context, client xrdclient.Client, name string, flags xrdclient.OpenFlags, perms xrdclient.AccessMode, opts xrd.Options, clock timeutil.Clock) (*RequestManager, error) {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	m := &RequestManager{
		name:   name,
		flags:  flags,
		perms:  perms,
		client: client,
		opts:   opts,
		clock:  clock,
	}
	fh, err := client.Open(ctx, name, flags, perms)
	if err != nil {
		return nil, m.newOpenError(name, err, nil)
	}
	now := clock.Now()
	src := newSource(now, fh, clock)
	m.active = []*Source{src}
	m.lastCheck = now
	m.nextCheck = now.Add(opts.SourceCheckHorizon)
	xrd.Infof(m, "opened with initial source %s", src.ID())
	return m, nil
}

// String converts the manager for debug output.
func (m *RequestManager) String() string {
	return m.name
}

// Filename returns the logical file's URL.
func (m *RequestManager) Filename() string {
	return m.name
}

// Read submits a scalar read of len(p) bytes at off. The buffer is
// borrowed until the returned future resolves.
func (m *RequestManager) Read(p []byte, off int64) *Future {
	return m.handle(newScalarRequest(m, p, off))
}

// ReadV submits a vector read. With two healthy sources the vector is cut
// in two and served by both; the returned future carries the total bytes
// read across all chunks.
func (m *RequestManager) ReadV(iolist []xrd.PosBuffer) *Future {
	now := m.clock.Now()
	m.checkSources(now, xrd.SizeOf(iolist))

	m.mu.Lock()
	if len(m.active) < maxActiveSources {
		src := m.fallbackLocked()
		m.mu.Unlock()
		if src == nil {
			f := newFuture()
			f.resolve(0, xrd.ErrNoActiveSources)
			return f
		}
		c := newVectorRequest(m, iolist)
		src.Dispatch(c)
		return c.Future()
	}
	src1, src2 := m.active[0], m.active[1]
	req1, req2 := splitRequest(iolist, src1.Quality(), src2.Quality(), m.opts.MaxChunkSize)
	m.mu.Unlock()

	var f1, f2 *Future
	if len(req1) > 0 {
		c := newVectorRequest(m, req1)
		src1.Dispatch(c)
		f1 = c.Future()
	}
	if len(req2) > 0 {
		c := newVectorRequest(m, req2)
		src2.Dispatch(c)
		f2 = c.Future()
	}
	switch {
	case f1 != nil && f2 != nil:
		return joinFutures(f1, f2)
	case f1 != nil:
		return f1
	case f2 != nil:
		return f2
	}
	return resolvedFuture(0)
}

// handle routes one already-built request to a source.
func (m *RequestManager) handle(c *ClientRequest) *Future {
	now := m.clock.Now()
	m.checkSources(now, c.Size())

	m.mu.Lock()
	var src *Source
	if len(m.active) == maxActiveSources {
		if m.toggle {
			src = m.active[0]
		} else {
			src = m.active[1]
		}
		m.toggle = !m.toggle
	} else {
		src = m.fallbackLocked()
	}
	m.mu.Unlock()
	if src == nil {
		c.Future().resolve(0, xrd.ErrNoActiveSources)
		return c.Future()
	}

	src.Dispatch(c)
	return c.Future()
}

// fallbackLocked picks the source for a non-split read: the single active
// source, or the most recently demoted one while the active set is empty
// and a replacement is still on its way.
func (m *RequestManager) fallbackLocked() *Source {
	if len(m.active) > 0 {
		return m.active[0]
	}
	if len(m.inactive) > 0 {
		return m.inactive[len(m.inactive)-1]
	}
	return nil
}

// ActiveSourceNames returns the ids of the sources currently eligible for
// new requests.
func (m *RequestManager) ActiveSourceNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeNamesLocked()
}

func (m *RequestManager) activeNamesLocked() []string {
	names := make([]string, 0, len(m.active))
	for _, s := range m.active {
		names = append(names, s.ID())
	}
	return names
}

// ActiveFile returns a wire handle suitable for metadata operations, or
// nil when every source has been lost.
func (m *RequestManager) ActiveFile() xrdclient.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) == 0 {
		return nil
	}
	return m.active[0].FileHandle()
}

// CurrentStatus reports a diagnostic snapshot of the source sets.
func (m *RequestManager) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Name: m.name, Disabled: append([]string(nil), m.disabled...)}
	for _, s := range m.active {
		st.Active = append(st.Active, SourceStatus{ID: s.ID(), Quality: s.Quality()})
	}
	for _, s := range m.inactive {
		st.Inactive = append(st.Inactive, SourceStatus{ID: s.ID(), Quality: s.Quality()})
	}
	return st
}

// Close closes every retained source handle exactly once. Reads submitted
// afterwards resolve with ErrNoActiveSources.
func (m *RequestManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	srcs := append(append([]*Source(nil), m.active...), m.inactive...)
	m.active, m.inactive = nil, nil
	m.mu.Unlock()

	var errs []error
	for _, s := range srcs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkSources reconsiders the active source set, at most once per check
// interval and only once the previously scheduled horizon has passed.
func (m *RequestManager) checkSources(now time.Time, requestSize int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastCheck) < m.opts.SourceCheckInterval || now.Before(m.nextCheck) {
		return
	}
	m.lastCheck = now
	m.checkSourcesLocked(now, requestSize)
}

func (m *RequestManager) checkSourcesLocked(now time.Time, requestSize int64) {
	findNew := false
	if len(m.active) <= 1 {
		findNew = true
		// Even a lone source is cut loose once it crosses the high
		// watermark; reads fall back to it through the inactive list
		// until the replacement lands.
		if len(m.active) == 1 && m.active[0].Quality() > m.opts.QualityHighWatermark {
			m.demoteLocked(0)
		}
	} else {
		q0 := m.active[0].Quality()
		q1 := m.active[1].Quality()
		if m.evictionWorthy(q0, q1) {
			m.demoteLocked(0)
			findNew = true
		} else if m.evictionWorthy(q1, q0) {
			m.demoteLocked(1)
			findNew = true
		}
	}

	if findNew && !m.opening && !m.closed {
		if !m.startReplacementLocked() {
			m.nextCheck = now.Add(m.opts.OpenBackoff)
			return
		}
	}
	m.nextCheck = now.Add(m.opts.SourceCheckHorizon)
}

// evictionWorthy applies the demotion rule to a source scoring q with a
// peer scoring peer.
func (m *RequestManager) evictionWorthy(q, peer uint64) bool {
	if q > m.opts.QualityHighWatermark {
		return true
	}
	return q > m.opts.QualityFloor && q*m.opts.QualityRatio < peer
}

// demoteLocked moves active[i] to the inactive list, retaining the
// reference so the id keeps appearing in the avoid string.
func (m *RequestManager) demoteLocked(i int) {
	src := m.active[i]
	m.active = append(m.active[:i], m.active[i+1:]...)
	m.inactive = append(m.inactive, src)
	xrd.Warnf(m, "demoted source %s (quality %d)", src.ID(), src.Quality())
	m.pruneInactiveLocked()
}

// pruneInactiveLocked collapses the oldest idle inactive sources into bare
// disabled ids so evicted handles do not pile up forever.
func (m *RequestManager) pruneInactiveLocked() {
	for len(m.inactive) > m.opts.MaxInactiveSources {
		old := m.inactive[0]
		if old.Inflight() > 0 {
			return
		}
		m.inactive = m.inactive[1:]
		m.disabled = append(m.disabled, old.ID())
		_ = old.Close()
	}
}

// startReplacementLocked kicks off a non-blocking redirector open that
// avoids every host already seen. Reports whether the kick-off was
// accepted; a refusal is logged and answered with back-off rather than
// surfaced, since the replacement is opportunistic.
func (m *RequestManager) startReplacementLocked() bool {
	target := m.name + m.opaqueLocked()
	xrd.Infof(m, "trying to open replacement source: %s", target)
	m.opening = true
	if err := m.client.OpenAsync(context.Background(), target, m.flags, m.perms, m); err != nil {
		m.opening = false
		xrd.Errorf(m, "%v", m.newOpenError(target, err, m.activeNamesLocked()))
		return false
	}
	return true
}

// HandleOpenWithHosts implements xrdclient.OpenHandler: the completion of
// a replacement open, delivered on a wire-owned goroutine.
func (m *RequestManager) HandleOpenWithHosts(status *xrdclient.Status, fh xrdclient.File, hosts []string) {
	now := m.clock.Now()
	if !status.IsOK() {
		m.mu.Lock()
		m.opening = false
		m.nextCheck = m.nextCheck.Add(m.opts.OpenBackoff)
		m.mu.Unlock()
		xrd.Warnf(m, "replacement open failed: %v; backing off", status)
		return
	}

	src := newSource(now, fh, m.clock)
	m.mu.Lock()
	m.opening = false
	if m.closed || len(m.active) >= maxActiveSources || m.hasSourceLocked(src.ID()) {
		m.mu.Unlock()
		xrd.Infof(m, "no slot for new source %s; closing it", src.ID())
		_ = src.Close()
		return
	}
	m.active = append(m.active, src)
	m.mu.Unlock()
	xrd.Infof(m, "successfully opened new source: %s", src.ID())
}

func (m *RequestManager) hasSourceLocked(id string) bool {
	for _, s := range m.active {
		if s.ID() == id {
			return true
		}
	}
	for _, s := range m.inactive {
		if s.ID() == id {
			return true
		}
	}
	return false
}

// requestFailure records a read failure on src. With a peer available the
// failing source is demoted immediately and the next reconsideration is
// pulled forward; a lone source keeps serving.
func (m *RequestManager) requestFailure(src *Source, status *xrdclient.Status) {
	if src == nil {
		return
	}
	m.mu.Lock()
	demoted := false
	if len(m.active) > 1 {
		for i, s := range m.active {
			if s == src {
				m.demoteLocked(i)
				demoted = true
				break
			}
		}
	}
	m.nextCheck = m.clock.Now()
	m.mu.Unlock()
	if demoted {
		xrd.Warnf(m, "read failed on %s: %v", src.ID(), status)
	} else {
		xrd.Warnf(m, "read failed on %s: %v; no peer to fail over to", src.ID(), status)
	}
}

// opaqueLocked builds the ?tried= suffix listing every host to avoid:
// active first, then inactive, then disabled, each id cut at the first
// colon.
func (m *RequestManager) opaqueLocked() string {
	var ids []string
	for _, s := range m.active {
		ids = append(ids, truncateHost(s.ID()))
	}
	for _, s := range m.inactive {
		ids = append(ids, truncateHost(s.ID()))
	}
	for _, id := range m.disabled {
		ids = append(ids, truncateHost(id))
	}
	return "?tried=" + strings.Join(ids, ",")
}

func truncateHost(id string) string {
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i]
	}
	return id
}

// newOpenError annotates a failed open with the attempted parameters and
// the wire status when one is available. The source snapshot is passed in
// so locked and unlocked callers can both use it.
func (m *RequestManager) newOpenError(name string, err error, sources []string) *xrd.OpenError {
	e := &xrd.OpenError{
		Name:          name,
		Flags:         int(m.flags),
		Perms:         int(m.perms),
		ActiveSources: sources,
		Err:           err,
	}
	var st *xrdclient.Status
	if errors.As(err, &st) {
		e.Status = st.String()
		e.ErrNo = st.ErrNo
		e.Code = st.Code
	} else {
		e.Status = err.Error()
	}
	return e
}
