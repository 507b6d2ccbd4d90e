package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lamht/forwarder/internal/tunnelurl"
)

// DefaultTable is the key the URL is stored under when none is configured.
const DefaultTable = "cloudflare"

// DefaultTimeout bounds a single publish attempt.
const DefaultTimeout = 10 * time.Second

// Publisher writes the current tunnel URL to a remote store. Writes replace
// the stored value; repeating one is harmless apart from the timestamp.
// Implementations never retry and must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, url tunnelurl.TunnelURL) error
}

// PublishCloser is a Publisher holding a connection that must be released.
type PublishCloser interface {
	Publisher
	Close() error
}

// Record is the value stored for a table.
type Record struct {
	URL       tunnelurl.TunnelURL
	UpdatedAt time.Time
}

// NewRecord stamps url with now.
func NewRecord(url tunnelurl.TunnelURL, now time.Time) Record {
	return Record{URL: url, UpdatedAt: now}
}

type wireRecord struct {
	URL       string `json:"url"`
	UpdatedAt int64  `json:"updatedAt"`
}

// MarshalJSON encodes the record as {"url": ..., "updatedAt": <unix millis>}.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{URL: string(r.URL), UpdatedAt: r.UpdatedAt.UnixMilli()})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r.URL = tunnelurl.TunnelURL(w.URL)
	r.UpdatedAt = time.UnixMilli(w.UpdatedAt)
	return nil
}

// RemoteRejectedError means the store answered with a non-success status.
type RemoteRejectedError struct {
	Status int
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote store rejected write: status %d", e.Status)
}

// TransportError means the store could not be reached or the write did not
// complete (DNS, refused connection, timeout, driver error).
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string { return "remote store transport failure: " + e.Message }

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a *TransportError.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Message: err.Error(), Err: err}
}

// IsRemoteRejected reports whether err is a rejection and returns its status.
func IsRemoteRejected(err error) (int, bool) {
	var re *RemoteRejectedError
	if errors.As(err, &re) {
		return re.Status, true
	}
	return 0, false
}

// IsTransportFailure reports whether err is a transport failure.
func IsTransportFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
