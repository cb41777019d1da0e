package xrdclient

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nilClient struct{}

func (nilClient) Open(ctx context.Context, url string, flags OpenFlags, mode AccessMode) (File, error) {
	return nil, NewStatusError(StError, 0, "not implemented")
}

func (nilClient) OpenAsync(ctx context.Context, url string, flags OpenFlags, mode AccessMode, handler OpenHandler) error {
	return NewStatusError(StError, 0, "not implemented")
}

func TestRegistry(t *testing.T) {
	Register("TestScheme", func(ctx context.Context, u *url.URL) (Client, error) {
		return nilClient{}, nil
	})

	_, err := Get("testscheme")
	require.NoError(t, err, "scheme lookup is case-insensitive")

	c, err := NewClient(context.Background(), "testscheme://host:1094//store/file")
	require.NoError(t, err)
	assert.IsType(t, nilClient{}, c)

	_, err = NewClient(context.Background(), "bogus://host/file")
	assert.ErrorContains(t, err, `didn't find a client for scheme "bogus"`)
}
