package xrdclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsOK(t *testing.T) {
	var s *Status
	assert.True(t, s.IsOK())
	assert.True(t, StatusOK().IsOK())
	assert.False(t, NewStatusError(StError, 5, "oops").IsOK())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "[SUCCESS]", StatusOK().String())
	s := NewStatusError(StError, 3005, "Connection refused to %s", "hostA")
	assert.Equal(t, "[ERROR] Connection refused to hostA (code=1, errno=3005)", s.String())
	assert.Equal(t, s.String(), s.Error())
}
