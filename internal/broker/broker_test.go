package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotpatch/internal/config"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
)

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(config.NATSConfig{}, nil)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryValidation))
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect(config.NATSConfig{URL: "nats://127.0.0.1:1", Name: "test"}, nil)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryNetwork))
	assert.True(t, derrors.IsRetryable(err))
}

func TestNilClientClose(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())
}
