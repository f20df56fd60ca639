// Package store keeps a live, read-only mirror of the case-record collection
// held in a remote log and writes mutations through to it.
//
// The published list only ever changes when the remote log delivers a
// snapshot; Create, UpdateStatus and Delete never touch it directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bnn-rehab/internal/models"
	"bnn-rehab/internal/remotelog"

	"go.uber.org/zap"
)

// DefaultPath is the collection holding case records.
const DefaultPath = "pengajuan"

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// AuditEvent describes one accepted mutation.
type AuditEvent struct {
	Op       string    `json:"op"`
	RecordID string    `json:"record_id"`
	Status   string    `json:"status,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	At       time.Time `json:"at"`
}

// AuditSink receives an event after every mutation the remote log accepted.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// Observer receives store activity for metrics.
type Observer interface {
	SnapshotApplied(records int)
	WriteCompleted(op string, err error)
	SubscriptionFailed()
}

// Options configures a RecordStore.
type Options struct {
	Path     string
	AutoSeed bool
	Now      func() time.Time
	Audit    AuditSink
	Observer Observer
}

type listener struct {
	fn func([]models.CaseRecord)
}

// RecordStore mirrors one remote collection.
type RecordStore struct {
	log      remotelog.Log
	path     string
	autoSeed bool
	now      func() time.Time
	audit    AuditSink
	observer Observer
	logger   *zap.Logger

	// snapMu serializes snapshot handling; one snapshot is applied fully before the next
	snapMu sync.Mutex

	mu        sync.RWMutex
	records   []models.CaseRecord
	loading   bool
	lastErr   error
	listeners []*listener
	unsub     remotelog.Unsubscribe
	started   bool
	closed    bool

	errs chan error
}

// NewRecordStore creates a store; call Start to open the subscription.
func NewRecordStore(log remotelog.Log, opts Options, logger *zap.Logger) *RecordStore {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RecordStore{
		log:      log,
		path:     opts.Path,
		autoSeed: opts.AutoSeed,
		now:      opts.Now,
		audit:    opts.Audit,
		observer: opts.Observer,
		logger:   logger,
		records:  []models.CaseRecord{},
		errs:     make(chan error, 1),
	}
}

// Start opens the single standing subscription.
func (s *RecordStore) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("record store closed")
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("record store already started")
	}
	s.started = true
	s.loading = true
	s.mu.Unlock()

	unsub, err := s.log.Subscribe(ctx, s.path, s.handleSnapshot, s.handleError)
	if err != nil {
		err = &TransportError{Op: "subscribe", Err: err}
		s.handleError(err)
		return err
	}

	s.mu.Lock()
	s.unsub = unsub
	closed := s.closed
	s.mu.Unlock()
	if closed {
		unsub()
	}

	s.logger.Info("Record store subscribed", zap.String("path", s.path))
	return nil
}

// Close releases the subscription and drops listeners.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.listeners = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return nil
}

// Records returns the current published list. It must not be modified.
func (s *RecordStore) Records() []models.CaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Loading reports whether the first snapshot (or a subscription error) is still pending.
func (s *RecordStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the subscription failure, if any.
func (s *RecordStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Errors delivers subscription failures.
func (s *RecordStore) Errors() <-chan error {
	return s.errs
}

// Path returns the collection path.
func (s *RecordStore) Path() string {
	return s.path
}

// OnChange registers fn to run after every publish, in registration order.
func (s *RecordStore) OnChange(fn func([]models.CaseRecord)) func() {
	l := &listener{fn: fn}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, existing := range s.listeners {
				if existing == l {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *RecordStore) handleSnapshot(snap remotelog.Snapshot) {
	s.snapMu.Lock()

	var list []models.CaseRecord
	var seeds []models.CaseRecord
	if !snap.Exists() {
		if s.autoSeed {
			seeds = SeedRecords(s.now())
			list = append([]models.CaseRecord(nil), seeds...)
			models.SortNewestFirst(list)
			s.logger.Info("Collection empty, provisioning seed records",
				zap.String("path", s.path),
				zap.Int("seed_count", len(seeds)),
			)
		} else {
			list = []models.CaseRecord{}
		}
	} else {
		list = make([]models.CaseRecord, 0, len(snap.Entries))
		for _, entry := range snap.Entries {
			list = append(list, models.ParseCaseRecord(entry.Key, entry.Value))
		}
		models.SortNewestFirst(list)
	}

	s.publish(list)
	s.snapMu.Unlock()

	if len(seeds) > 0 {
		if err := WriteSeeds(context.Background(), s.log, s.path, seeds); err != nil {
			s.logger.Warn("Failed to write seed records", zap.String("path", s.path), zap.Error(err))
		}
	}
}

// publish must hold snapMu.
func (s *RecordStore) publish(list []models.CaseRecord) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.records = list
	s.loading = false
	listeners := make([]*listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SnapshotApplied(len(list))
	}
	s.logger.Debug("Snapshot applied",
		zap.String("path", s.path),
		zap.Int("record_count", len(list)),
	)

	for _, l := range listeners {
		l.fn(list)
	}
}

func (s *RecordStore) handleError(err error) {
	s.mu.Lock()
	s.loading = false
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Error("Record subscription failed", zap.String("path", s.path), zap.Error(err))
	if s.observer != nil {
		s.observer.SubscriptionFailed()
	}
	select {
	case s.errs <- err:
	default:
	}
}

// Create validates input, fills defaults and writes the record under a new key.
// The local list is not touched; the new record appears with the next snapshot.
func (s *RecordStore) Create(ctx context.Context, in models.CreateInput) Result {
	record, err := s.buildRecord(in)
	if err != nil {
		s.observe("create", err)
		return failed(err)
	}

	key := s.log.NewKey(s.path)
	if err := s.log.Write(ctx, remotelog.Child(s.path, key), record.ToValue()); err != nil {
		terr := &TransportError{Op: "create", Err: err}
		s.logger.Error("Failed to create record", zap.String("path", s.path), zap.Error(err))
		s.observe("create", terr)
		return failed(terr)
	}

	s.logger.Info("Record created",
		zap.String("record_id", key),
		zap.String("reference_number", record.ReferenceNumber),
	)
	s.observe("create", nil)
	s.recordAudit(ctx, AuditEvent{
		Op:       "create",
		RecordID: key,
		Status:   string(record.Status),
		Actor:    record.SubmittedByEmail,
	})
	return ok(key)
}

// UpdateStatus merges {status, updatedAt} into the record. A vanished id is a silent no-op.
func (s *RecordStore) UpdateStatus(ctx context.Context, id string, status models.Status) Result {
	id = strings.TrimSpace(id)
	if id == "" {
		err := &ValidationError{Field: "id", Reason: "required for status update"}
		s.observe("update_status", err)
		return failed(err)
	}
	if !status.Valid() {
		err := &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
		s.observe("update_status", err)
		return failed(err)
	}

	partial := map[string]any{
		"status":    string(status),
		"updatedAt": s.now().UTC().Format(isoMillis),
	}
	if err := s.log.Update(ctx, remotelog.Child(s.path, id), partial); err != nil {
		terr := &TransportError{Op: "update status", Err: err}
		s.logger.Error("Failed to update status", zap.String("record_id", id), zap.Error(err))
		s.observe("update_status", terr)
		return failed(terr)
	}

	s.observe("update_status", nil)
	s.recordAudit(ctx, AuditEvent{Op: "update_status", RecordID: id, Status: string(status)})
	return ok(id)
}

// Delete removes the record. Success means the request was accepted; removing
// an id that is already gone also succeeds.
func (s *RecordStore) Delete(ctx context.Context, id string) Result {
	id = strings.TrimSpace(id)
	if id == "" {
		err := &ValidationError{Field: "id", Reason: "required for deletion"}
		s.observe("delete", err)
		return failed(err)
	}

	if err := s.log.Remove(ctx, remotelog.Child(s.path, id)); err != nil {
		terr := &TransportError{Op: "delete", Err: err}
		s.logger.Error("Failed to delete record", zap.String("record_id", id), zap.Error(err))
		s.observe("delete", terr)
		return failed(terr)
	}

	s.observe("delete", nil)
	s.recordAudit(ctx, AuditEvent{Op: "delete", RecordID: id})
	return ok(id)
}

func (s *RecordStore) buildRecord(in models.CreateInput) (models.CaseRecord, error) {
	name := strings.TrimSpace(in.Name)
	nationalID := strings.TrimSpace(in.NationalID)
	address := strings.TrimSpace(in.Address)
	institution := strings.TrimSpace(in.Institution)

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if nationalID == "" {
		missing = append(missing, "nationalId")
	}
	if address == "" {
		missing = append(missing, "address")
	}
	if institution == "" {
		missing = append(missing, "institution")
	}
	if len(missing) > 0 {
		return models.CaseRecord{}, missingFields(missing)
	}

	lat, err := models.ParseCoordinate(string(in.Latitude))
	if err != nil {
		return models.CaseRecord{}, &ValidationError{Field: "latitude", Reason: "invalid coordinate"}
	}
	lng, err := models.ParseCoordinate(string(in.Longitude))
	if err != nil {
		return models.CaseRecord{}, &ValidationError{Field: "longitude", Reason: "invalid coordinate"}
	}

	gender := models.GenderMale
	if g := strings.TrimSpace(in.Gender); g != "" {
		parsed, ok := models.ParseGender(g)
		if !ok {
			return models.CaseRecord{}, &ValidationError{Field: "gender", Reason: fmt.Sprintf("unknown gender %q", g)}
		}
		gender = parsed
	}

	status := models.StatusOutpatient
	if st := strings.TrimSpace(in.Status); st != "" {
		parsed, ok := models.ParseStatus(st)
		if !ok {
			return models.CaseRecord{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", st)}
		}
		status = parsed
	}

	now := s.now()
	admission := now
	admissionDate := strings.TrimSpace(in.AdmissionDate)
	if admissionDate == "" {
		admissionDate = now.Format("2006-01-02")
	} else {
		parsed, err := time.Parse("2006-01-02", admissionDate)
		if err != nil {
			return models.CaseRecord{}, &ValidationError{Field: "admissionDate", Reason: "expected YYYY-MM-DD"}
		}
		admission = parsed
	}
	display := strings.TrimSpace(in.AdmissionDateDisplay)
	if display == "" {
		display = models.FormatDisplayDate(admission)
	}

	reference := strings.TrimSpace(in.ReferenceNumber)
	if reference == "" {
		reference = fmt.Sprintf("TAT-%d", now.UnixMilli())
	}
	submittedBy := strings.TrimSpace(in.SubmittedByEmail)
	if submittedBy == "" {
		submittedBy = "unknown"
	}
	submittedByName := strings.TrimSpace(in.SubmittedByName)
	if submittedByName == "" {
		submittedByName = "Admin"
	}

	return models.CaseRecord{
		Name:                 name,
		NationalID:           nationalID,
		Gender:               gender,
		Address:              address,
		Institution:          institution,
		Status:               status,
		AdmissionDate:        admissionDate,
		AdmissionDateDisplay: display,
		Latitude:             &lat,
		Longitude:            &lng,
		ReferenceNumber:      reference,
		SubmittedByEmail:     submittedBy,
		SubmittedByName:      submittedByName,
		CreatedAt:            now.UTC().Format(isoMillis),
		Timestamp:            now.UnixMilli(),
	}, nil
}

func (s *RecordStore) observe(op string, err error) {
	if s.observer != nil {
		s.observer.WriteCompleted(op, err)
	}
}

func (s *RecordStore) recordAudit(ctx context.Context, ev AuditEvent) {
	if s.audit == nil {
		return
	}
	ev.At = s.now()
	if err := s.audit.Record(ctx, ev); err != nil {
		s.logger.Warn("Failed to record audit event",
			zap.String("op", ev.Op),
			zap.String("record_id", ev.RecordID),
			zap.Error(err),
		)
	}
}

// WriteSeeds writes records under their own ids.
func WriteSeeds(ctx context.Context, log remotelog.Log, path string, records []models.CaseRecord) error {
	var errs []error
	for _, r := range records {
		if err := log.Write(ctx, remotelog.Child(path, r.ID), r.ToValue()); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}
