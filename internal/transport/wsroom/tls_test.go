package wsroom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/roomlink/internal/room"
	"github.com/danmuck/roomlink/internal/testutil/testlog"
	"github.com/danmuck/roomlink/internal/testutil/tlstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectOverTLSWithCustomCA(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "roomlink-test-ca")

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send(conn, joined("RM_tls"))
		drain(conn, nil)
	}))
	srv.TLS = ca.ServerConfig(t, "127.0.0.1")
	srv.StartTLS()
	t.Cleanup(srv.Close)
	url := "wss" + strings.TrimPrefix(srv.URL, "https")

	_, err := NewTransport(Config{URL: url, HandshakeTimeout: time.Second}).
		Connect(context.Background(), "tok", room.ConnectOptions{})
	require.Error(t, err, "system roots must not trust the test authority")

	pool, err := LoadRootCAs(ca.WriteCAFile(t, t.TempDir()))
	require.NoError(t, err)
	sess, err := NewTransport(Config{URL: url, HandshakeTimeout: time.Second, RootCAs: pool}).
		Connect(context.Background(), "tok", room.ConnectOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Disconnect() })
	assert.Equal(t, "RM_tls", sess.SID())
}

func TestLoadRootCAsRejectsEmptyBundle(t *testing.T) {
	_, err := LoadRootCAs(t.TempDir() + "/missing.pem")
	assert.Error(t, err)
}
