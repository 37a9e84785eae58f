package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/logger"
	"github.com/dayuer/chatgw/internal/utils"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS participants (
		contact_id        TEXT PRIMARY KEY,
		vendor_id         TEXT NOT NULL,
		channel           TEXT NOT NULL,
		participant_token TEXT NOT NULL DEFAULT '',
		connection_token  TEXT NOT NULL DEFAULT '',
		expires_at        INTEGER NOT NULL,
		created_at        INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_vendor
		ON participants(vendor_id, channel);

	CREATE INDEX IF NOT EXISTS idx_participants_expires
		ON participants(expires_at);
`

// SQLiteStore keeps participants in a single SQLite file. Expired rows are
// invisible to reads and removed by PurgeExpired.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
	log *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	log = logger.OrNop(log).Named("directory.sqlite")

	if err := utils.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; CreateIfAbsent relies on the unique index.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info("sqlite directory initialized", zap.String("path", path))
	return &SQLiteStore{db: db, now: time.Now, log: log}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectParticipant = `
	SELECT contact_id, vendor_id, channel, participant_token, connection_token, expires_at
	FROM participants`

func (s *SQLiteStore) scan(row *sql.Row) (Participant, error) {
	var (
		p       Participant
		channel string
		expires int64
	)
	err := row.Scan(&p.ContactID, &p.VendorID, &channel, &p.ParticipantToken, &p.ConnectionToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Participant{}, ErrNotFound
	}
	if err != nil {
		return Participant{}, fmt.Errorf("sqlite read participant: %w", err)
	}
	p.Channel = channels.Channel(channel)
	p.ExpiresAt = time.Unix(expires, 0)
	return p, nil
}

func (s *SQLiteStore) Get(ctx context.Context, contactID string) (Participant, error) {
	row := s.db.QueryRowContext(ctx,
		selectParticipant+` WHERE contact_id = ? AND expires_at > ?`,
		contactID, s.now().Unix())
	return s.scan(row)
}

func (s *SQLiteStore) LookupByVendor(ctx context.Context, ch channels.Channel, vendorID string) (Participant, error) {
	row := s.db.QueryRowContext(ctx,
		selectParticipant+` WHERE vendor_id = ? AND channel = ? AND expires_at > ?`,
		vendorID, string(ch), s.now().Unix())
	return s.scan(row)
}

func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, p Participant) error {
	now := s.now().Unix()

	// An expired row still holds the unique slot until it is purged.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE vendor_id = ? AND channel = ? AND expires_at <= ?`,
		p.VendorID, string(p.Channel), now); err != nil {
		return fmt.Errorf("sqlite purge expired participant: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO participants
			(contact_id, vendor_id, channel, participant_token, connection_token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		p.ContactID, p.VendorID, string(p.Channel), p.ParticipantToken, p.ConnectionToken,
		p.ExpiresAt.Unix(), now)
	if err != nil {
		return fmt.Errorf("sqlite create participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite create participant: %w", err)
	}
	if n == 1 {
		return nil
	}

	winner, err := s.LookupByVendor(ctx, p.Channel, p.VendorID)
	if err != nil {
		winner.ContactID = p.ContactID
	}
	return &ConflictError{WinnerID: winner.ContactID}
}

// update runs a single-row update against a live record.
func (s *SQLiteStore) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetConnectionToken(ctx context.Context, contactID, token string) error {
	return s.update(ctx, "attach connection token",
		`UPDATE participants SET connection_token = ? WHERE contact_id = ? AND expires_at > ?`,
		token, contactID, s.now().Unix())
}

func (s *SQLiteStore) Extend(ctx context.Context, contactID string, expiresAt time.Time) error {
	return s.update(ctx, "extend participant",
		`UPDATE participants SET expires_at = ? WHERE contact_id = ? AND expires_at > ?`,
		expiresAt.Unix(), contactID, s.now().Unix())
}

func (s *SQLiteStore) Delete(ctx context.Context, contactID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE contact_id = ?`, contactID); err != nil {
		return fmt.Errorf("sqlite delete participant: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	return res.RowsAffected()
}

// RunPurge calls PurgeExpired every interval until ctx is cancelled.
func (s *SQLiteStore) RunPurge(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.log.Warn("purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("purged expired participants", zap.Int64("rows", n))
			}
		}
	}
}
