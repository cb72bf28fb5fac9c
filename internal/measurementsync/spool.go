package measurementsync

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/pkg/storage"
)

const (
	pendingDir  = "pending"
	rejectedDir = "rejected"
	entrySuffix = ".json"
)

// Entry is one spooled reading. Name is its storage path and sorts in
// recording order.
type Entry struct {
	Name        string
	Measurement models.Measurement
}

// Spool keeps readings on disk until the record service has accepted them.
type Spool struct {
	store *storage.LocalStorage
	now   func() time.Time
}

// NewSpool returns a spool rooted at the given storage.
func NewSpool(store *storage.LocalStorage) *Spool {
	return &Spool{store: store, now: time.Now}
}

// Add writes a reading to the pending area. A missing ID or timestamp is filled in.
func (s *Spool) Add(m models.Measurement) (Entry, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return Entry{}, fmt.Errorf("encode measurement: %w", err)
	}
	name := path.Join(pendingDir, fmt.Sprintf("%020d-%s%s", now.UnixNano(), m.ID, entrySuffix))
	if _, err := s.store.Save(name, raw); err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Measurement: m}, nil
}

// Pending lists readings awaiting sync, oldest first. Entries that cannot be
// decoded are moved to the rejected area and skipped.
func (s *Spool) Pending() ([]Entry, []error) {
	names, err := s.store.List(pendingDir, entrySuffix)
	if err != nil {
		return nil, []error{err}
	}
	entries := make([]Entry, 0, len(names))
	var errs []error
	for _, name := range names {
		raw, err := s.store.Read(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var m models.Measurement
		if err := json.Unmarshal(raw, &m); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", name, err))
			if rerr := s.Reject(name); rerr != nil {
				errs = append(errs, rerr)
			}
			continue
		}
		entries = append(entries, Entry{Name: name, Measurement: m})
	}
	return entries, errs
}

// Remove drops an entry once it is synced.
func (s *Spool) Remove(name string) error {
	return s.store.Delete(name)
}

// Reject moves an entry the record service will never accept out of the pending area.
func (s *Spool) Reject(name string) error {
	raw, err := s.store.Read(name)
	if err != nil {
		return err
	}
	target := path.Join(rejectedDir, strings.TrimPrefix(name, pendingDir+"/"))
	if _, err := s.store.Save(target, raw); err != nil {
		return err
	}
	return s.store.Delete(name)
}

// Rejected lists entries that were set aside.
func (s *Spool) Rejected() ([]string, error) {
	return s.store.List(rejectedDir, entrySuffix)
}
