package xrdtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
)

type recorder struct {
	mu     sync.Mutex
	status *xrdclient.Status
	resp   *xrdclient.Response
	done   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) HandleResponse(status *xrdclient.Status, resp *xrdclient.Response) {
	r.mu.Lock()
	r.status = status
	r.resp = resp
	r.mu.Unlock()
	close(r.done)
}

func (r *recorder) wait(t *testing.T) (*xrdclient.Status, *xrdclient.Response) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no completion delivered")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.resp
}

func TestOpenPicksFirstHost(t *testing.T) {
	s := NewServer([]byte("hello world"),
		&Host{Name: "a.example.com:1094"},
		&Host{Name: "b.example.com:1094"},
	)
	f, err := s.Client().Open(context.Background(), "mem://c//f", xrdclient.OpenRead, xrdclient.AccessNone)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com:1094", f.DataServer())
	require.NoError(t, f.Close())
	assert.Error(t, f.Close(), "double close is reported")
}

func TestOpenHonorsTriedList(t *testing.T) {
	s := NewServer(nil,
		&Host{Name: "a.example.com:1094"},
		&Host{Name: "b.example.com:1094"},
	)
	f, err := s.Client().Open(context.Background(), "mem://c//f?tried=a.example.com", xrdclient.OpenRead, xrdclient.AccessNone)
	require.NoError(t, err)
	assert.Equal(t, "b.example.com:1094", f.DataServer())

	_, err = s.Client().Open(context.Background(), "mem://c//f?tried=a.example.com,b.example.com", xrdclient.OpenRead, xrdclient.AccessNone)
	require.Error(t, err)
	var st *xrdclient.Status
	require.ErrorAs(t, err, &st)
	assert.Equal(t, xrdclient.ErrNoMoreHosts, st.ErrNo)
}

func TestReadDeliversOffWire(t *testing.T) {
	s := NewServer([]byte("0123456789"), &Host{Name: "a:1094"})
	f, err := s.Client().Open(context.Background(), "mem://c//f", xrdclient.OpenRead, xrdclient.AccessNone)
	require.NoError(t, err)

	buf := make([]byte, 4)
	rec := newRecorder()
	require.NoError(t, f.Read(2, buf, rec))
	status, resp := rec.wait(t)
	require.True(t, status.IsOK())
	assert.Equal(t, int64(4), resp.Chunk.Length)
	assert.Equal(t, "2345", string(buf))
}

func TestVectorReadTotals(t *testing.T) {
	s := NewServer([]byte("0123456789"), &Host{Name: "a:1094"})
	f, err := s.Client().Open(context.Background(), "mem://c//f", xrdclient.OpenRead, xrdclient.AccessNone)
	require.NoError(t, err)

	chunks := []xrd.PosBuffer{
		{Offset: 0, Data: make([]byte, 3)},
		{Offset: 7, Data: make([]byte, 3)},
	}
	rec := newRecorder()
	require.NoError(t, f.VectorRead(chunks, rec))
	status, resp := rec.wait(t)
	require.True(t, status.IsOK())
	assert.Equal(t, int64(6), resp.VectorLength)
	assert.Equal(t, "012", string(chunks[0].Data))
	assert.Equal(t, "789", string(chunks[1].Data))
}

func TestFailReads(t *testing.T) {
	h := &Host{Name: "a:1094"}
	s := NewServer([]byte("data"), h)
	f, err := s.Client().Open(context.Background(), "mem://c//f", xrdclient.OpenRead, xrdclient.AccessNone)
	require.NoError(t, err)

	h.FailReads(1)
	rec := newRecorder()
	require.NoError(t, f.Read(0, make([]byte, 4), rec))
	status, _ := rec.wait(t)
	assert.False(t, status.IsOK())
	assert.Equal(t, xrdclient.ErrIO, status.ErrNo)

	// The failure budget is spent; the next read succeeds.
	rec = newRecorder()
	require.NoError(t, f.Read(0, make([]byte, 4), rec))
	status, _ = rec.wait(t)
	assert.True(t, status.IsOK())
}

func TestOpenAsyncDelivery(t *testing.T) {
	s := NewServer(nil, &Host{Name: "a:1094"})

	type result struct {
		status *xrdclient.Status
		file   xrdclient.File
	}
	ch := make(chan result, 1)
	err := s.Client().OpenAsync(context.Background(), "mem://c//f", xrdclient.OpenRead, xrdclient.AccessNone,
		openFunc(func(status *xrdclient.Status, file xrdclient.File, hosts []string) {
			ch <- result{status, file}
		}))
	require.NoError(t, err)

	select {
	case r := <-ch:
		require.True(t, r.status.IsOK())
		assert.Equal(t, "a:1094", r.file.DataServer())
	case <-time.After(2 * time.Second):
		t.Fatal("open completion never delivered")
	}
}

type openFunc func(*xrdclient.Status, xrdclient.File, []string)

func (f openFunc) HandleOpenWithHosts(status *xrdclient.Status, file xrdclient.File, hosts []string) {
	f(status, file, hosts)
}
