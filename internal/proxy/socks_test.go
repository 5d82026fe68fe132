package proxy

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectClient(t *testing.T) {
	c, err := NewHTTPClient("", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, c.Transport)
	assert.Equal(t, time.Minute, c.Timeout)
}

func TestSocksClient(t *testing.T) {
	c, err := NewHTTPClient("127.0.0.1:8888", 0)
	require.NoError(t, err)
	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotNil(t, tr.DialContext)
}
