// Package timeline keeps a sqlite audit log of engine decisions and their delivery.
package timeline

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no decision matches a trace ID.
var ErrNotFound = errors.New("timeline: decision not found")

type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create timeline dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TimelineService{db: db}, nil
}

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// RecordDecision inserts d, filling EventID, CreatedAt and DeliveryStatus when empty.
func (s *TimelineService) RecordDecision(d *Decision) error {
	if d.EventID == "" {
		d.EventID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.DeliveryStatus == "" {
		d.DeliveryStatus = DeliveryNone
	}
	res, err := s.db.Exec(`
		INSERT INTO decisions (event_id, trace_id, channel, chat_id, message_id, sender_id, author_is_bot, outcome, reply, suspended_until, delivery_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.EventID, d.TraceID, d.Channel, d.ChatID, d.MessageID, d.SenderID, d.AuthorIsBot,
		d.Outcome, d.Reply, d.SuspendedUntil, d.DeliveryStatus, d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

// UpdateDelivery sets the delivery outcome of the decision with traceID.
// reason is stored for failures and cleared otherwise.
func (s *TimelineService) UpdateDelivery(traceID, status, reason string) error {
	var deliveredAt any
	if status == DeliverySent {
		deliveredAt = time.Now().UnixMilli()
	}
	res, err := s.db.Exec(`
		UPDATE decisions SET delivery_status = ?, delivery_error = ?, delivered_at = ?
		WHERE trace_id = ?`, status, reason, deliveredAt, traceID)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type FilterArgs struct {
	Outcome string
	Channel string
	ChatID  string
	Limit   int
	Offset  int
}

// ListDecisions returns decisions newest first.
func (s *TimelineService) ListDecisions(filter FilterArgs) ([]Decision, error) {
	query := `SELECT id, event_id, trace_id, channel, chat_id, COALESCE(message_id,''), COALESCE(sender_id,''), author_is_bot,
		outcome, COALESCE(reply,''), suspended_until, delivery_status, COALESCE(delivery_error,''), created_at, delivered_at
		FROM decisions WHERE 1=1`
	args := []any{}

	if filter.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.ChatID != "" {
		query += " AND chat_id = ?"
		args = append(args, filter.ChatID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d           Decision
			createdAt   int64
			deliveredAt sql.NullInt64
		)
		if err := rows.Scan(
			&d.ID, &d.EventID, &d.TraceID, &d.Channel, &d.ChatID, &d.MessageID, &d.SenderID, &d.AuthorIsBot,
			&d.Outcome, &d.Reply, &d.SuspendedUntil, &d.DeliveryStatus, &d.DeliveryError, &createdAt, &deliveredAt,
		); err != nil {
			return nil, err
		}
		d.CreatedAt = time.UnixMilli(createdAt)
		if deliveredAt.Valid {
			t := time.UnixMilli(deliveredAt.Int64)
			d.DeliveredAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByOutcome returns the number of recorded decisions per outcome.
func (s *TimelineService) CountByOutcome() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM decisions GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune deletes decisions older than cutoff and returns how many were removed.
func (s *TimelineService) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM decisions WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
