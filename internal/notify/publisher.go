// Package notify streams periodic StatsSnapshots to a downstream
// collaborator (a dashboard or a ClickHouse sink) over a Unix domain
// socket. A dropped connection is redialed inside PublishStats on the
// caller's goroutine; there is no background reconnect.
package notify

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Publisher dials a Unix socket and streams newline-delimited JSON
// StatsSnapshots to it. A Publisher is safe for concurrent use.
type Publisher struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewPublisher constructs a Publisher and attempts an initial
// best-effort connection; the downstream collaborator need not be up
// yet, since PublishStats redials on every failed write.
func NewPublisher(path string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{path: path, logger: logger}
	p.dial()
	return p
}

func (p *Publisher) dial() {
	conn, err := net.Dial("unix", p.path)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.logger.Info("notify: connected", zap.String("path", p.path))
}

// PublishStats encodes snap and writes it, reconnecting up to
// maxAttempts times if the socket has dropped. It returns the last
// dial or write error if every attempt fails; the caller decides
// whether a lost stats stream is worth logging loudly or swallowing.
func (p *Publisher) PublishStats(snap StatsSnapshot) error {
	msg, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	msg = append(msg, '\n')

	const maxAttempts = 3
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if p.conn == nil {
			conn, err := net.Dial("unix", p.path)
			if err != nil {
				lastErr = err
				time.Sleep(200 * time.Millisecond)
				continue
			}
			p.conn = conn
			p.logger.Info("notify: reconnected", zap.String("path", p.path))
		}

		if _, err := p.conn.Write(msg); err != nil {
			p.conn.Close()
			p.conn = nil
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// Close closes the underlying connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
