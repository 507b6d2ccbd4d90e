package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lamht/forwarder/internal/publish"
	"github.com/lamht/forwarder/internal/tunnelurl"
)

// Publisher writes the URL to a Firebase Realtime Database style REST
// endpoint: PUT baseURL + "/" + table + ".json" with a JSON record body.
// PUT replaces the whole node, so repeated writes are idempotent.
type Publisher struct {
	client  *http.Client
	baseURL string
	table   string
	now     func() time.Time
}

// New returns a publisher for baseURL/table. A zero timeout means
// publish.DefaultTimeout; an empty table means publish.DefaultTable.
func New(baseURL, table string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = publish.DefaultTimeout
	}
	if table == "" {
		table = publish.DefaultTable
	}
	c := &http.Client{Timeout: timeout}
	return &Publisher{client: c, baseURL: strings.TrimRight(baseURL, "/"), table: table, now: time.Now}
}

// Endpoint returns the resource the record is written to.
func (p *Publisher) Endpoint() string {
	return fmt.Sprintf("%s/%s.json", p.baseURL, p.table)
}

func (p *Publisher) Publish(ctx context.Context, url tunnelurl.TunnelURL) error {
	b, err := json.Marshal(publish.NewRecord(url, p.now()))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.Endpoint(), bytes.NewReader(b))
	if err != nil {
		return publish.Transport(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return publish.Transport(err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &publish.RemoteRejectedError{Status: resp.StatusCode}
	}
	return nil
}

// Close is a no-op; it lets the factory treat every backend alike.
func (p *Publisher) Close() error { return nil }
