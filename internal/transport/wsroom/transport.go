// Package wsroom is a room transport over a JSON signaling WebSocket with a pion peer
// connection for media negotiation.
package wsroom

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/danmuck/roomlink/internal/room"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	writeTimeout            = 5 * time.Second
)

var (
	ErrURLRequired   = errors.New("wsroom: room url required")
	ErrJoinRejected  = errors.New("wsroom: join rejected")
	ErrHandshake     = errors.New("wsroom: handshake failed")
	ErrSessionClosed = errors.New("wsroom: session closed")
)

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ICEServers       []string
	// RootCAs, when set, replaces the system pool for wss dials.
	RootCAs *x509.CertPool
	Dialer  *websocket.Dialer
	Logger  zerolog.Logger
}

func (c Config) WithDefaults() Config {
	c.URL = strings.TrimSpace(c.URL)
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.HandshakeTimeout,
		}
		if c.RootCAs != nil {
			c.Dialer.TLSClientConfig = &tls.Config{RootCAs: c.RootCAs, MinVersion: tls.VersionTLS12}
		}
	}
	return c
}

// LoadRootCAs reads a PEM bundle for Config.RootCAs.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wsroom: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("wsroom: no certificates in %s", path)
	}
	return pool, nil
}

// Transport dials one signaling socket per Connect call.
type Transport struct {
	cfg Config
}

func NewTransport(cfg Config) *Transport {
	return &Transport{cfg: cfg.WithDefaults()}
}

// Connect dials the room, waits for room.joined and returns the live session.
func (t *Transport) Connect(ctx context.Context, token string, opts room.ConnectOptions) (room.Session, error) {
	if t.cfg.URL == "" {
		return nil, ErrURLRequired
	}
	target, err := t.dialURL(token, opts)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := t.cfg.Dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsroom: dial %s: %s: %w", t.cfg.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("wsroom: dial %s: %w", t.cfg.URL, err)
	}

	joined, err := t.handshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers()})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wsroom: peer connection: %w", err)
	}

	logger := t.cfg.Logger.With().Str("room_sid", joined.RoomSID).Logger()
	s := newSession(joined, conn, pc, t.cfg.PingInterval, logger)
	logger.Debug().Str("room_name", joined.RoomName).Msg("wsroom.Transport.Connect joined")
	s.start()
	return s, nil
}

func (t *Transport) dialURL(token string, opts room.ConnectOptions) (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("wsroom: parse room url: %w", err)
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	if opts.RoomName != "" {
		q.Set("room", opts.RoomName)
	}
	if opts.Identity != "" {
		q.Set("identity", opts.Identity)
	}
	for k, v := range opts.Metadata {
		q.Set("meta."+k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handshake reads the first frame. ctx cancellation closes the socket to unblock the read.
func (t *Transport) handshake(ctx context.Context, conn *websocket.Conn) (Frame, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(t.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrHandshake, ctx.Err())
		}
		return Frame{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	f, err := decodeFrame(data)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	switch f.Type {
	case FrameRoomJoined:
		_ = conn.SetReadDeadline(time.Time{})
		return f, nil
	case FrameRoomRejected:
		return Frame{}, fmt.Errorf("%w: %s (%s)", ErrJoinRejected, f.Message, f.Code)
	default:
		return Frame{}, fmt.Errorf("%w: expected %s, got %s", ErrHandshake, FrameRoomJoined, f.Type)
	}
}

func (t *Transport) iceServers() []webrtc.ICEServer {
	if len(t.cfg.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: t.cfg.ICEServers}}
}
