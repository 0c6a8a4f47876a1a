package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"deficore/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MaxQueryLimit caps a single Query page.
	MaxQueryLimit = 1000
)

// Record is one committed protocol event.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence  uint64    `gorm:"uniqueIndex" json:"sequence"`
	Digest    string    `gorm:"size:64;uniqueIndex" json:"digest"`
	Type      string    `gorm:"size:64;index" json:"type"`
	Module    string    `gorm:"size:32;index" json:"module"`
	Height    uint64    `gorm:"index" json:"height"`
	Actor     string    `gorm:"size:96;index" json:"actor,omitempty"`
	Subject   string    `gorm:"size:96;index" json:"subject,omitempty"`
	Amount    string    `gorm:"size:80" json:"amount"`
	Extra     string    `json:"extra,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm's pluralisation.
func (Record) TableName() string { return "protocol_events" }

// Filter narrows a Query. Zero fields do not filter.
type Filter struct {
	Type          string `json:"type,omitempty"`
	Module        string `json:"module,omitempty"`
	Actor         string `json:"actor,omitempty"`
	Subject       string `json:"subject,omitempty"`
	FromHeight    uint64 `json:"fromHeight,omitempty"`
	ToHeight      uint64 `json:"toHeight,omitempty"`
	AfterSequence uint64 `json:"afterSequence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// Store persists events through gorm.
type Store struct {
	db   *gorm.DB
	mu   sync.Mutex
	next uint64
}

// Open connects to driver/dsn and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("eventlog: nil database")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	var last struct{ Max *uint64 }
	if err := db.Model(&Record{}).Select("MAX(sequence) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("eventlog: load sequence: %w", err)
	}
	s := &Store{db: db, next: 1}
	if last.Max != nil {
		s.next = *last.Max + 1
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// prepare assigns sequence numbers, ids and digests.
func (s *Store) prepare(evs []events.Event) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		rec := Record{
			ID:       uuid.New(),
			Sequence: s.next,
			Type:     ev.EventType(),
			Amount:   "0",
		}
		rec.Module, _, _ = strings.Cut(rec.Type, ".")
		if note, ok := ev.(events.Notification); ok {
			rec.Height = note.Height
			rec.Actor = note.Actor.String()
			rec.Subject = note.Subject.String()
			if note.Amount != nil {
				rec.Amount = note.Amount.String()
			}
			if len(note.Extra) > 0 {
				raw, err := json.Marshal(note.Extra)
				if err != nil {
					return nil, fmt.Errorf("eventlog: encode extra: %w", err)
				}
				rec.Extra = string(raw)
			}
		}
		rec.Digest = digest(&rec)
		out = append(out, rec)
		s.next++
	}
	return out, nil
}

// digest is blake3 over the record content, excluding the random id.
func digest(r *Record) string {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], r.Sequence)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], r.Height)
	h.Write(buf[:])
	for _, field := range []string{r.Type, r.Actor, r.Subject, r.Amount, r.Extra} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(field)))
		h.Write(buf[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// insert writes records, ignoring any whose digest is already stored, so a
// retried batch never duplicates rows.
func (s *Store) insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "digest"}}, DoNothing: true}).
		Create(&records).Error
}

// Append stores evs in order.
func (s *Store) Append(ctx context.Context, evs []events.Event) error {
	records, err := s.prepare(evs)
	if err != nil {
		return err
	}
	return s.insert(ctx, records)
}

// Query returns matching records in sequence order.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Module != "" {
		q = q.Where("module = ?", f.Module)
	}
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if f.FromHeight > 0 {
		q = q.Where("height >= ?", f.FromHeight)
	}
	if f.ToHeight > 0 {
		q = q.Where("height <= ?", f.ToHeight)
	}
	if f.AfterSequence > 0 {
		q = q.Where("sequence > ?", f.AfterSequence)
	}
	limit := f.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	var out []Record
	if err := q.Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, err
}
