// Package store persists bridge state as a single JSON document: atomic
// write via temp-file rename, read-modify-write guarded by a coarse
// single-writer lock, reload-apply-persist on every mutation. This
// replaces a Postgres/pgx persistence layer — a single operator process
// has no relational-schema needs that would justify running a database.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Document is the full persisted shape.
type Document struct {
	Users     map[string]json.RawMessage `json:"users"`
	Addresses map[string]json.RawMessage `json:"addresses"`
	Invoices  map[string]InvoiceRecord   `json:"invoices"`
	Nonces    map[string]uint64          `json:"nonces"`
	Payments  map[string]PaymentRecord   `json:"payments"`
}

func newDocument() Document {
	return Document{
		Users:     make(map[string]json.RawMessage),
		Addresses: make(map[string]json.RawMessage),
		Invoices:  make(map[string]InvoiceRecord),
		Nonces:    make(map[string]uint64),
		Payments:  make(map[string]PaymentRecord),
	}
}

// Store is a single-writer, coarse-locked JSON document store. All access
// goes through Mutate/View so every in-process caller sees a consistent
// reload-apply-persist cycle. This is prone to lost updates under heavy
// concurrent mutation, but acceptable at this bridge's throughput.
type Store struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// New builds a Store rooted at path, ensuring its parent directory exists
// on disk.
func New(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure data dir: %w", err)
	}
	s := &Store{path: path, log: log}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeDocument(newDocument()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) readDocument() (Document, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return newDocument(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	doc := newDocument()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Document{}, fmt.Errorf("store: decode %s: %w", s.path, err)
		}
	}
	if doc.Users == nil {
		doc.Users = make(map[string]json.RawMessage)
	}
	if doc.Addresses == nil {
		doc.Addresses = make(map[string]json.RawMessage)
	}
	if doc.Invoices == nil {
		doc.Invoices = make(map[string]InvoiceRecord)
	}
	if doc.Nonces == nil {
		doc.Nonces = make(map[string]uint64)
	}
	if doc.Payments == nil {
		doc.Payments = make(map[string]PaymentRecord)
	}
	return doc, nil
}

// writeDocument persists doc via write-to-temp-then-rename, the atomic
// write this store requires.
func (s *Store) writeDocument(doc Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// Mutate reloads the document from disk, applies fn, and persists the
// result — the reload-apply-persist cycle this store runs on every
// mutation, guarded by the store's single coarse lock.
func (s *Store) Mutate(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.writeDocument(doc)
}

// View reloads the document from disk and hands it to fn without persisting
// any change fn makes — read-only access, still serialized against writers.
func (s *Store) View(fn func(Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	return fn(doc)
}

// GetPayment returns a copy of the payment record keyed by its no-prefix
// canonical hash, and whether it exists.
func (s *Store) GetPayment(hash string) (PaymentRecord, bool, error) {
	var rec PaymentRecord
	var ok bool
	err := s.View(func(doc Document) error {
		rec, ok = doc.Payments[hash]
		return nil
	})
	return rec, ok, err
}

// PutPayment upserts a payment record keyed by its no-prefix canonical hash.
func (s *Store) PutPayment(rec PaymentRecord) error {
	return s.Mutate(func(doc *Document) error {
		doc.Payments[rec.PaymentHashNoPrefix] = rec
		return nil
	})
}

// History returns the append-only event log for hash, following the
// audit trail query surface.
func (s *Store) History(hash string) ([]HistoryEvent, error) {
	var events []HistoryEvent
	err := s.View(func(doc Document) error {
		if rec, ok := doc.Payments[hash]; ok {
			events = rec.History
		}
		return nil
	})
	return events, err
}

// GetInvoice returns a copy of the invoice record keyed by its local label.
func (s *Store) GetInvoice(label string) (InvoiceRecord, bool, error) {
	var rec InvoiceRecord
	var ok bool
	err := s.View(func(doc Document) error {
		rec, ok = doc.Invoices[label]
		return nil
	})
	return rec, ok, err
}

// PutInvoice upserts an invoice record keyed by label.
func (s *Store) PutInvoice(label string, rec InvoiceRecord) error {
	return s.Mutate(func(doc *Document) error {
		doc.Invoices[label] = rec
		return nil
	})
}

// ListInvoiceLabels returns every known invoice label, for CreditMonitor's
// per-tick sweep.
func (s *Store) ListInvoiceLabels() ([]string, error) {
	var labels []string
	err := s.View(func(doc Document) error {
		labels = make([]string, 0, len(doc.Invoices))
		for label := range doc.Invoices {
			labels = append(labels, label)
		}
		return nil
	})
	return labels, err
}

// NextNonce reads and increments the named nonce counter atomically against
// the store's coarse lock, used for any nonce bookkeeping the store itself
// needs to persist across restarts (distinct from the in-memory chain nonce
// lane, which never survives a restart by design).
func (s *Store) NextNonce(name string) (uint64, error) {
	var next uint64
	err := s.Mutate(func(doc *Document) error {
		next = doc.Nonces[name]
		doc.Nonces[name] = next + 1
		return nil
	})
	return next, err
}
