package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/transport"
	"github.com/evsim/cpsim/infra/logger"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{ocpp.Subprotocol},
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendsBasicAuthHeader(t *testing.T) {
	var gotAuth, gotPath, gotProto string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotProto = r.Header.Get("Sec-WebSocket-Protocol")
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	d := NewDialer(Options{URL: wsURL(srv), ChargePointID: "CP001", Password: "secret"}, logger.NopLogger{})
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	wantCreds := base64.StdEncoding.EncodeToString([]byte("CP001:secret"))
	assert.Equal(t, "Basic "+wantCreds, gotAuth)
	assert.Equal(t, "/CP001", gotPath)
	assert.Contains(t, gotProto, ocpp.Subprotocol)
}

func TestDialUnauthorizedIsTerminal(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDialer(Options{URL: wsURL(srv), ChargePointID: "CP001", Password: "wrong"}, logger.NopLogger{})
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.Equal(t, 1, attempts, "401 must abort the strategy cycle")
}

func TestDialFallsBackAfterServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	d := NewDialer(Options{URL: wsURL(srv), ChargePointID: "CP001"}, logger.NopLogger{})
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 3, attempts)
}

func TestDialAllStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDialer(Options{URL: wsURL(srv), ChargePointID: "CP001"}, logger.NopLogger{})
	_, err := d.Dial(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, transport.ErrUnauthorized)
}

func TestConnSendReceive(t *testing.T) {
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	defer echo.Close()

	d := NewDialer(Options{URL: wsURL(echo), ChargePointID: "CP001"}, logger.NopLogger{})
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	msg := []byte(`[2,"1","Heartbeat",{}]`)
	require.NoError(t, conn.Send(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestConnClosedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	d := NewDialer(Options{URL: wsURL(srv), ChargePointID: "CP001"}, logger.NopLogger{})
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Send(context.Background(), []byte("x")), transport.ErrClosed)
}
