// Package ws connects to the central system over WebSocket with the
// ocpp1.6 subprotocol, trying Basic auth in a header, credentials
// embedded in the URI, then a bare connection.
package ws

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/transport"
)

// Options configures the dialer.
type Options struct {
	// URL is the central system endpoint without the charge point id,
	// e.g. wss://csms.example.com/ocpp.
	URL           string
	ChargePointID string
	Password      string
	// CABundle is an optional PEM file for server verification.
	CABundle string
	// InsecureSkipVerify disables certificate checks, for test rigs.
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
	PingInterval       time.Duration
}

// Dialer implements transport.Dialer over gorilla/websocket.
type Dialer struct {
	opts Options
	log  logger.Logger
}

func NewDialer(opts Options, log logger.Logger) *Dialer {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 20 * time.Second
	}
	return &Dialer{opts: opts, log: log}
}

// Dial tries each connection strategy in order. A 401 or 403 response
// aborts the cycle with transport.ErrUnauthorized since no other
// strategy will change the server's mind about bad credentials.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	tlsConfig, err := d.tlsConfig()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s", d.opts.URL, d.opts.ChargePointID)

	strategies := []struct {
		name string
		dial func(ctx context.Context, tlsConfig *tls.Config) (*websocket.Conn, error)
	}{
		{"auth header", d.dialWithHeader},
		{"auth in URI", d.dialWithUserinfo},
		{"no auth", d.dialBare},
	}

	var lastErr error
	for _, s := range strategies {
		d.log.Debugf("connecting to %s (%s)", endpoint, s.name)
		conn, err := s.dial(ctx, tlsConfig)
		if err == nil {
			d.log.Infof("connected to %s (%s)", endpoint, s.name)
			return newConn(conn, d.opts.PingInterval, d.log), nil
		}
		if errors.Is(err, transport.ErrUnauthorized) {
			d.log.Errorf("authentication rejected for charge point %s", d.opts.ChargePointID)
			return nil, err
		}
		d.log.Warnf("connection strategy %q failed: %v", s.name, err)
		lastErr = err
	}
	return nil, fmt.Errorf("all connection strategies failed: %w", lastErr)
}

func (d *Dialer) dialWithHeader(ctx context.Context, tlsConfig *tls.Config) (*websocket.Conn, error) {
	header := http.Header{}
	creds := base64.StdEncoding.EncodeToString([]byte(d.opts.ChargePointID + ":" + d.opts.Password))
	header.Set("Authorization", "Basic "+creds)
	return d.dial(ctx, tlsConfig, fmt.Sprintf("%s/%s", d.opts.URL, d.opts.ChargePointID), header)
}

// dialWithUserinfo embeds the credentials in the URI. gorilla refuses
// userinfo URLs, and the handshake can only carry userinfo as a Basic
// header anyway, so the userinfo is folded into the header here.
func (d *Dialer) dialWithUserinfo(ctx context.Context, tlsConfig *tls.Config) (*websocket.Conn, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s", d.opts.URL, d.opts.ChargePointID))
	if err != nil {
		return nil, err
	}
	u.User = url.UserPassword(d.opts.ChargePointID, d.opts.Password)
	header := http.Header{}
	if user := u.User; user != nil {
		pass, _ := user.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + pass))
		header.Set("Authorization", "Basic "+creds)
		u.User = nil
	}
	return d.dial(ctx, tlsConfig, u.String(), header)
}

func (d *Dialer) dialBare(ctx context.Context, tlsConfig *tls.Config) (*websocket.Conn, error) {
	return d.dial(ctx, tlsConfig, fmt.Sprintf("%s/%s", d.opts.URL, d.opts.ChargePointID), nil)
}

func (d *Dialer) dial(ctx context.Context, tlsConfig *tls.Config, endpoint string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.opts.HandshakeTimeout,
		Subprotocols:     []string{ocpp.Subprotocol},
		TLSClientConfig:  tlsConfig,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("server returned %d: %w", resp.StatusCode, transport.ErrUnauthorized)
		}
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) tlsConfig() (*tls.Config, error) {
	if d.opts.CABundle == "" && !d.opts.InsecureSkipVerify {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: d.opts.InsecureSkipVerify}
	if d.opts.CABundle != "" {
		pem, err := os.ReadFile(d.opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", d.opts.CABundle)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
