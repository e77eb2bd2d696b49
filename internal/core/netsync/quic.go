package netsync

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

const quicProtocol = "statesync-quic"

// MaxPayloadSize bounds a single received snapshot.
const MaxPayloadSize = 16 << 20

var ErrPayloadTooLarge = errors.New("payload too large")

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:        30 * time.Second,
		MaxIncomingUniStreams: 1000,
		KeepAlivePeriod:       15 * time.Second,
	}
}

// QUICTransport sends every payload on its own unidirectional stream, so the
// stream end marks the payload boundary.
type QUICTransport struct {
	conn *quic.Conn
}

func NewQUICTransport(conn *quic.Conn) *QUICTransport {
	return &QUICTransport{conn: conn}
}

// DialQUIC connects to a QUIC listener. A nil tlsConf skips certificate
// verification, which only suits development setups.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (*QUICTransport, error) {
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true, NextProtos: []string{quicProtocol}}
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return NewQUICTransport(conn), nil
}

func (t *QUICTransport) Send(ctx context.Context, payload []byte) error {
	str, err := t.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := str.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if _, err := str.Write(payload); err != nil {
		str.CancelWrite(0)
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return str.Close()
}

// Receive returns the next payload. Streams are accepted in the order the
// peer opened them.
func (t *QUICTransport) Receive(ctx context.Context) ([]byte, error) {
	str, err := t.conn.AcceptUniStream(ctx)
	if err != nil {
		if t.conn.Context().Err() != nil {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to accept stream: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(str, MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if len(data) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

func (t *QUICTransport) Close() error {
	return t.conn.CloseWithError(0, "closed")
}

type QUICListener struct {
	listener *quic.Listener
}

// ListenQUIC listens on addr. A nil tlsConf uses a generated self-signed
// certificate.
func ListenQUIC(addr string, tlsConf *tls.Config) (*QUICListener, error) {
	if tlsConf == nil {
		var err error
		if tlsConf, err = SelfSignedTLS(); err != nil {
			return nil, err
		}
	}
	l, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &QUICListener{listener: l}, nil
}

func (l *QUICListener) Addr() net.Addr { return l.listener.Addr() }

func (l *QUICListener) Accept(ctx context.Context) (*QUICTransport, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept connection: %w", err)
	}
	return NewQUICTransport(conn), nil
}

func (l *QUICListener) Close() error { return l.listener.Close() }

// SelfSignedTLS builds an in-memory certificate for 127.0.0.1.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"statesync"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv}),
	)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicProtocol},
	}, nil
}
