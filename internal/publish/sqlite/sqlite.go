package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lamht/forwarder/internal/publish"
	"github.com/lamht/forwarder/internal/tunnelurl"
)

// Publisher keeps the current URL in a SQLite table, one row per name.
type Publisher struct {
	db      *sql.DB
	name    string
	timeout time.Duration
	now     func() time.Time
}

// New opens a SQLite publisher.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn, name string, timeout time.Duration) (*Publisher, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	if name == "" {
		name = publish.DefaultTable
	}
	if timeout <= 0 {
		timeout = publish.DefaultTimeout
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	p := &Publisher{db: db, name: name, timeout: timeout, now: time.Now}
	if err := p.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS tunnel_urls(
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	_, err := p.db.ExecContext(ctx, stmt)
	return err
}

func (p *Publisher) Publish(ctx context.Context, url tunnelurl.TunnelURL) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	rec := publish.NewRecord(url, p.now())
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tunnel_urls(name, url, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET url = excluded.url, updated_at = excluded.updated_at;`,
		p.name, string(rec.URL), rec.UpdatedAt.UnixMilli())
	return publish.Transport(err)
}

// Get returns the stored record for the publisher's name.
func (p *Publisher) Get(ctx context.Context) (publish.Record, error) {
	var (
		u  string
		ms int64
	)
	err := p.db.QueryRowContext(ctx, `SELECT url, updated_at FROM tunnel_urls WHERE name = ?`, p.name).Scan(&u, &ms)
	if err != nil {
		return publish.Record{}, err
	}
	return publish.Record{URL: tunnelurl.TunnelURL(u), UpdatedAt: time.UnixMilli(ms)}, nil
}

func (p *Publisher) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
