// Package xrdtest is an in-memory rendition of the wire layer: a
// redirector fronting a set of simulated data servers holding one logical
// file. It honors the ?tried= avoid list, injects scripted latencies and
// failures, and delivers every completion on its own goroutine the way the
// real client library does.
//
// Importing the package registers the "mem" URL scheme; clusters made
// addressable with Serve can then be opened as mem://<cluster>/<path>.
package xrdtest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
)

var (
	serveMu  sync.Mutex
	clusters = make(map[string]*Server)
)

func init() {
	xrdclient.Register("mem", func(ctx context.Context, u *url.URL) (xrdclient.Client, error) {
		serveMu.Lock()
		defer serveMu.Unlock()
		s, ok := clusters[u.Host]
		if !ok {
			return nil, xrdclient.NewStatusError(xrdclient.StError, 0, "no cluster %q", u.Host)
		}
		return s.Client(), nil
	})
}

// Serve makes a cluster addressable as mem://name/...; a second Serve for
// the same name replaces the first.
func Serve(name string, s *Server) {
	serveMu.Lock()
	defer serveMu.Unlock()
	clusters[name] = s
}

// Host is one simulated data server.
type Host struct {
	// Name is the identity reported to clients, normally host:port.
	Name string
	// Latency delays every read completion.
	Latency time.Duration
	// OpenStatus, when set, fails any open routed to this host.
	OpenStatus *xrdclient.Status
	// Down removes the host from redirector consideration entirely.
	Down bool

	reads     int64
	failReads int64
	opens     int64
	closes    int64
}

// FailReads arranges for the next n reads on the host to complete with an
// I/O error.
func (h *Host) FailReads(n int64) {
	atomic.StoreInt64(&h.failReads, n)
}

func (h *Host) takeFailure() bool {
	for {
		n := atomic.LoadInt64(&h.failReads)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&h.failReads, n, n-1) {
			return true
		}
	}
}

// Reads returns how many read requests the host has completed.
func (h *Host) Reads() int64 {
	return atomic.LoadInt64(&h.reads)
}

// Opens returns how many file handles were opened on the host.
func (h *Host) Opens() int64 {
	return atomic.LoadInt64(&h.opens)
}

// Closes returns how many file handles were closed on the host.
func (h *Host) Closes() int64 {
	return atomic.LoadInt64(&h.closes)
}

// Server is a simulated cluster: a redirector plus data servers, all
// holding the same logical file content.
type Server struct {
	mu      sync.Mutex
	content []byte
	hosts   []*Host

	// OpenDelay postpones delivery of asynchronous open completions.
	OpenDelay time.Duration

	openAttempts int64
	lastOpenURL  string
}

// NewServer builds a cluster serving content from the given hosts, tried
// in order.
func NewServer(content []byte, hosts ...*Host) *Server {
	return &Server{content: content, hosts: hosts}
}

// OpenAttempts counts every open routed through the redirector, including
// failed ones.
func (s *Server) OpenAttempts() int64 {
	return atomic.LoadInt64(&s.openAttempts)
}

// LastOpenURL returns the URL of the most recent open attempt, complete
// with its opaque suffix.
func (s *Server) LastOpenURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpenURL
}

// Client returns a wire client speaking to this cluster.
func (s *Server) Client() xrdclient.Client {
	return &client{server: s}
}

// pick routes an open to the first host not excluded by the avoid list.
func (s *Server) pick(tried map[string]bool) (*Host, []string, *xrdclient.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var visited []string
	for _, h := range s.hosts {
		if h.Down {
			continue
		}
		visited = append(visited, h.Name)
		if tried[truncate(h.Name)] {
			continue
		}
		if h.OpenStatus != nil {
			return nil, visited, h.OpenStatus
		}
		return h, visited, nil
	}
	return nil, visited, xrdclient.NewStatusError(xrdclient.StError, xrdclient.ErrNoMoreHosts, "no servers are available to read the file")
}

type client struct {
	server *Server
}

func (c *client) open(rawURL string) (xrdclient.File, []string, *xrdclient.Status) {
	atomic.AddInt64(&c.server.openAttempts, 1)
	c.server.mu.Lock()
	c.server.lastOpenURL = rawURL
	c.server.mu.Unlock()
	tried := make(map[string]bool)
	if u, err := url.Parse(rawURL); err == nil {
		for _, id := range strings.Split(u.Query().Get("tried"), ",") {
			if id != "" {
				tried[id] = true
			}
		}
	}
	h, visited, st := c.server.pick(tried)
	if st != nil {
		return nil, visited, st
	}
	atomic.AddInt64(&h.opens, 1)
	return &file{server: c.server, host: h, url: rawURL}, visited, nil
}

// Open implements xrdclient.Client.
func (c *client) Open(ctx context.Context, rawURL string, flags xrdclient.OpenFlags, mode xrdclient.AccessMode) (xrdclient.File, error) {
	f, _, st := c.open(rawURL)
	if st != nil {
		return nil, st
	}
	return f, nil
}

// OpenAsync implements xrdclient.Client. The completion is delivered on a
// fresh goroutine, mirroring the real client's worker threads.
func (c *client) OpenAsync(ctx context.Context, rawURL string, flags xrdclient.OpenFlags, mode xrdclient.AccessMode, handler xrdclient.OpenHandler) error {
	go func() {
		if c.server.OpenDelay > 0 {
			time.Sleep(c.server.OpenDelay)
		}
		f, visited, st := c.open(rawURL)
		if st != nil {
			handler.HandleOpenWithHosts(st, nil, visited)
			return
		}
		handler.HandleOpenWithHosts(xrdclient.StatusOK(), f, visited)
	}()
	return nil
}

type file struct {
	server *Server
	host   *Host
	url    string

	mu     sync.Mutex
	closed bool
}

func (f *file) deliver(handler xrdclient.ResponseHandler, build func() (*xrdclient.Status, *xrdclient.Response)) {
	go func() {
		if f.host.Latency > 0 {
			time.Sleep(f.host.Latency)
		}
		atomic.AddInt64(&f.host.reads, 1)
		if f.host.takeFailure() {
			handler.HandleResponse(xrdclient.NewStatusError(xrdclient.StError, xrdclient.ErrIO, "[FATAL] Socket error"), nil)
			return
		}
		handler.HandleResponse(build())
	}()
}

// Read implements xrdclient.File.
func (f *file) Read(off int64, p []byte, handler xrdclient.ResponseHandler) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	f.deliver(handler, func() (*xrdclient.Status, *xrdclient.Response) {
		n := f.copyAt(off, p)
		return xrdclient.StatusOK(), &xrdclient.Response{Chunk: &xrdclient.ChunkInfo{Offset: off, Length: n}}
	})
	return nil
}

// VectorRead implements xrdclient.File.
func (f *file) VectorRead(chunks []xrd.PosBuffer, handler xrdclient.ResponseHandler) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	f.deliver(handler, func() (*xrdclient.Status, *xrdclient.Response) {
		var total int64
		for _, ch := range chunks {
			total += f.copyAt(ch.Offset, ch.Data)
		}
		return xrdclient.StatusOK(), &xrdclient.Response{VectorLength: total}
	})
	return nil
}

func (f *file) copyAt(off int64, p []byte) int64 {
	f.server.mu.Lock()
	defer f.server.mu.Unlock()
	if off >= int64(len(f.server.content)) {
		return 0
	}
	return int64(copy(p, f.server.content[off:]))
}

func (f *file) checkOpen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return xrdclient.NewStatusError(xrdclient.StError, xrdclient.ErrInvalidRequest, "file not open")
	}
	return nil
}

// Stat implements xrdclient.File.
func (f *file) Stat() (*xrdclient.StatInfo, error) {
	f.server.mu.Lock()
	defer f.server.mu.Unlock()
	return &xrdclient.StatInfo{Size: int64(len(f.server.content)), Mode: 0644}, nil
}

// DataServer implements xrdclient.File.
func (f *file) DataServer() string {
	return f.host.Name
}

// URL implements xrdclient.File.
func (f *file) URL() string {
	return f.url
}

// Close implements xrdclient.File. Closing twice reports an error, which
// lets tests catch double-close bugs.
func (f *file) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return xrdclient.NewStatusError(xrdclient.StError, xrdclient.ErrInvalidRequest, "file already closed")
	}
	f.closed = true
	atomic.AddInt64(&f.host.closes, 1)
	return nil
}

func truncate(id string) string {
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i]
	}
	return id
}
