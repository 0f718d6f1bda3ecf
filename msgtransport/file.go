package msgtransport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileTransport drops and reads JSON envelope files in a directory, for
// manual two-terminal operation (spec.md §9's transport is an injected
// external collaborator; this is the one concrete binding that ships,
// since no network transport is in scope). One party's Outbox is the
// other's Inbox.
type FileTransport struct {
	Inbox  string
	Outbox string

	pollInterval time.Duration
}

// NewFileTransport returns a FileTransport reading inbox and writing to
// outbox, polling inbox every pollInterval for new files when Recv is
// called and none is immediately available.
func NewFileTransport(inbox, outbox string, pollInterval time.Duration) (*FileTransport, error) {
	if err := os.MkdirAll(inbox, 0o700); err != nil {
		return nil, fmt.Errorf("creating inbox %s: %w", inbox, err)
	}
	if err := os.MkdirAll(outbox, 0o700); err != nil {
		return nil, fmt.Errorf("creating outbox %s: %w", outbox, err)
	}
	return &FileTransport{Inbox: inbox, Outbox: outbox, pollInterval: pollInterval}, nil
}

// Send writes envelope to a new file in Outbox named so that lexical
// order matches send order: <unix-nanos>_<trade_id>_<subject>.json.
func (t *FileTransport) Send(ctx context.Context, tradeID string, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	name := fmt.Sprintf("%020d_%s_%s.json", nowNanos(), tradeID, strings.ToLower(string(envelope.Subject)))
	path := filepath.Join(t.Outbox, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing envelope to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalizing envelope at %s: %w", path, err)
	}
	return nil
}

// Recv returns the oldest unread file in Inbox (by filename order),
// deleting it once parsed. It polls every pollInterval until ctx is
// done if Inbox is empty.
func (t *FileTransport) Recv(ctx context.Context) (Envelope, error) {
	for {
		name, ok, err := t.oldestFile()
		if err != nil {
			return Envelope{}, err
		}
		if ok {
			path := filepath.Join(t.Inbox, name)
			data, err := os.ReadFile(path)
			if err != nil {
				return Envelope{}, fmt.Errorf("reading envelope %s: %w", path, err)
			}
			var envelope Envelope
			if err := json.Unmarshal(data, &envelope); err != nil {
				return Envelope{}, fmt.Errorf("decoding envelope %s: %w", path, err)
			}
			if err := os.Remove(path); err != nil {
				return Envelope{}, fmt.Errorf("removing consumed envelope %s: %w", path, err)
			}
			return envelope, nil
		}

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}
}

func (t *FileTransport) oldestFile() (string, bool, error) {
	entries, err := os.ReadDir(t.Inbox)
	if err != nil {
		return "", false, fmt.Errorf("reading inbox %s: %w", t.Inbox, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false, nil
	}
	sort.Strings(names)
	return names[0], true, nil
}

// nowNanos is the only clock read in this package; it exists only to
// make filenames sort in send order and carries no protocol semantics.
func nowNanos() int64 {
	return time.Now().UnixNano()
}
