package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/lamht/forwarder/internal/publish"
	"github.com/lamht/forwarder/internal/tunnelurl"
)

// Publisher stores the URL in a ReplacingMergeTree table keyed by name, so
// the newest updated_at wins once parts merge (or when read with FINAL).
type Publisher struct {
	conn    driver.Conn
	name    string
	timeout time.Duration
	now     func() time.Time
}

// New connects to the ClickHouse native endpoint at addr (host:port).
func New(addr, name string, timeout time.Duration) (*Publisher, error) {
	if name == "" {
		name = publish.DefaultTable
	}
	if timeout <= 0 {
		timeout = publish.DefaultTimeout
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	p := &Publisher{conn: conn, name: name, timeout: timeout, now: time.Now}
	if err := p.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureSchema(ctx context.Context) error {
	return p.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tunnel_urls (
			name String,
			url String,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY name`)
}

func (p *Publisher) Publish(ctx context.Context, url tunnelurl.TunnelURL) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	rec := publish.NewRecord(url, p.now())
	err := p.conn.Exec(ctx, `INSERT INTO tunnel_urls (name, url, updated_at) VALUES (?, ?, ?)`,
		p.name, string(rec.URL), rec.UpdatedAt.UTC())
	if err != nil {
		return publish.Transport(fmt.Errorf("failed to insert url into ClickHouse: %w", err))
	}
	return nil
}

// Get returns the newest record for the publisher's name.
func (p *Publisher) Get(ctx context.Context) (publish.Record, error) {
	var (
		u  string
		at time.Time
	)
	row := p.conn.QueryRow(ctx, `SELECT url, updated_at FROM tunnel_urls FINAL WHERE name = ?`, p.name)
	if err := row.Scan(&u, &at); err != nil {
		return publish.Record{}, err
	}
	return publish.Record{URL: tunnelurl.TunnelURL(u), UpdatedAt: at}, nil
}

func (p *Publisher) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
