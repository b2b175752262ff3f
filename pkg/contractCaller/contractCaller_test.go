package contractCaller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_BusinessInfo(t *testing.T) {
	t.Run("Endpoint from ip and port", func(t *testing.T) {
		info, err := ParseBusinessInfo(`{"node_ip":"10.0.0.5","node_ws_port":8081,"name":"acme"}`)
		require.NoError(t, err)
		assert.Equal(t, "acme", info.Name)

		endpoint, err := info.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "ws://10.0.0.5:8081", endpoint)
	})

	t.Run("Domain takes precedence over ip", func(t *testing.T) {
		info := &BusinessInfo{NodeIP: "10.0.0.5", NodeDomain: "master.example.com", NodeWSPort: 443}
		endpoint, err := info.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "ws://master.example.com:443", endpoint)
	})

	t.Run("IPv6 host is bracketed", func(t *testing.T) {
		info := &BusinessInfo{NodeIP: "::1", NodeWSPort: 9000}
		endpoint, err := info.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "ws://[::1]:9000", endpoint)
	})

	t.Run("Missing port", func(t *testing.T) {
		info := &BusinessInfo{NodeIP: "10.0.0.5"}
		_, err := info.Endpoint()
		assert.Error(t, err)
	})

	t.Run("Invalid json", func(t *testing.T) {
		_, err := ParseBusinessInfo("not json")
		assert.Error(t, err)
	})
}
