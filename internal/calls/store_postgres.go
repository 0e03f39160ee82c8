package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voice-assistant/pkg/utils"
)

// Schema is passed to utils.OpenPostgres at startup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		call_id              TEXT PRIMARY KEY,
		company_id           TEXT NOT NULL,
		from_number          TEXT NOT NULL DEFAULT '',
		to_number            TEXT NOT NULL DEFAULT '',
		direction            TEXT NOT NULL,
		status               TEXT NOT NULL,
		state                TEXT NOT NULL,
		transcript           JSONB NOT NULL DEFAULT '[]'::jsonb,
		transferred_to_human BOOLEAN NOT NULL DEFAULT FALSE,
		transfer_reason      TEXT,
		sentiment            JSONB,
		start_time           TIMESTAMPTZ NOT NULL,
		end_time             TIMESTAMPTZ,
		duration_ms          BIGINT NOT NULL DEFAULT 0,
		reprompts            INT NOT NULL DEFAULT 0,
		scenario             TEXT NOT NULL DEFAULT '',
		actions              JSONB NOT NULL DEFAULT '[]'::jsonb,
		profile_snapshot     JSONB
	)`,
	`ALTER TABLE calls ADD COLUMN IF NOT EXISTS profile_snapshot JSONB`,
	`CREATE INDEX IF NOT EXISTS calls_company_start_idx ON calls (company_id, start_time)`,
}

// PostgresStore stores calls in Postgres through database/sql (pgx stdlib driver).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const callColumns = `call_id, company_id, from_number, to_number, direction, status, state, transcript,
	transferred_to_human, transfer_reason, sentiment, start_time, end_time, duration_ms, reprompts, scenario, actions,
	profile_snapshot`

func (s *PostgresStore) Create(ctx context.Context, c Call) error {
	if c.CallID == "" || c.CompanyID == "" {
		return ErrInvalidCall
	}
	row, err := encodeCall(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (`+callColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (call_id) DO NOTHING`,
		c.CallID, c.CompanyID, c.From, c.To, string(c.Direction), string(c.Status), string(c.State), row.transcript,
		c.TransferredToHuman, row.reason, row.sentiment, c.StartTime, row.end, c.DurationMs, c.Reprompts, c.Scenario,
		row.actions, row.snapshot)
	if err != nil {
		return fmt.Errorf("calls: insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, callID string) (Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = $1`, callID)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

// AppendTranscript concatenates one entry to the JSONB array while the row is locked.
func (s *PostgresStore) AppendTranscript(ctx context.Context, callID string, e Entry) error {
	entry, err := json.Marshal([]Entry{e})
	if err != nil {
		return fmt.Errorf("calls: encode entry: %w", err)
	}
	return utils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockOpenCall(ctx, tx, callID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE calls SET transcript = transcript || $2::jsonb WHERE call_id = $1`, callID, string(entry))
		if err != nil {
			return fmt.Errorf("calls: append transcript: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Save(ctx context.Context, c Call) error {
	row, err := encodeCall(c)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockOpenCall(ctx, tx, c.CallID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE calls SET
				status = $2, state = $3, transferred_to_human = $4, transfer_reason = $5, sentiment = $6,
				end_time = $7, duration_ms = $8, reprompts = $9, scenario = $10, actions = $11
			WHERE call_id = $1`,
			c.CallID, string(c.Status), string(c.State), c.TransferredToHuman, row.reason, row.sentiment,
			row.end, c.DurationMs, c.Reprompts, c.Scenario, row.actions)
		if err != nil {
			return fmt.Errorf("calls: save: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListByCompany(ctx context.Context, companyID string, from, to time.Time) ([]Call, error) {
	if companyID == "" {
		return nil, ErrInvalidCall
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+callColumns+` FROM calls
		WHERE company_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// lockOpenCall takes the row lock and refuses calls that were finalized.
func lockOpenCall(ctx context.Context, tx *sql.Tx, callID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM calls WHERE call_id = $1 FOR UPDATE`, callID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("calls: lock: %w", err)
	}
	if Status(status).IsTerminal() {
		return ErrCallFinalized
	}
	return nil
}

// encodedCall holds the column values that need encoding. Nullable columns are
// nil when absent.
type encodedCall struct {
	transcript string
	actions    string
	sentiment  any
	reason     any
	end        any
	snapshot   any
}

func encodeCall(c Call) (encodedCall, error) {
	var out encodedCall

	transcript := c.Transcript
	if transcript == nil {
		transcript = Transcript{}
	}
	b, err := json.Marshal(transcript)
	if err != nil {
		return out, fmt.Errorf("calls: encode transcript: %w", err)
	}
	out.transcript = string(b)

	actions := c.Actions
	if actions == nil {
		actions = []string{}
	}
	if b, err = json.Marshal(actions); err != nil {
		return out, fmt.Errorf("calls: encode actions: %w", err)
	}
	out.actions = string(b)

	if c.Sentiment != nil {
		if b, err = json.Marshal(c.Sentiment); err != nil {
			return out, fmt.Errorf("calls: encode sentiment: %w", err)
		}
		out.sentiment = string(b)
	}
	if c.TransferReason != nil {
		out.reason = *c.TransferReason
	}
	if c.EndTime != nil {
		out.end = *c.EndTime
	}
	if len(c.ProfileSnapshot) > 0 {
		out.snapshot = string(c.ProfileSnapshot)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (Call, error) {
	var (
		c          Call
		direction  string
		status     string
		state      string
		transcript []byte
		reason     sql.NullString
		sentiment  []byte
		end        sql.NullTime
		actions    []byte
		snapshot   []byte
	)
	err := r.Scan(&c.CallID, &c.CompanyID, &c.From, &c.To, &direction, &status, &state, &transcript,
		&c.TransferredToHuman, &reason, &sentiment, &c.StartTime, &end, &c.DurationMs, &c.Reprompts, &c.Scenario,
		&actions, &snapshot)
	if err != nil {
		return Call{}, err
	}
	c.Direction, c.Status, c.State = Direction(direction), Status(status), State(state)
	if err := json.Unmarshal(transcript, &c.Transcript); err != nil {
		return Call{}, fmt.Errorf("calls: decode transcript: %w", err)
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &c.Actions); err != nil {
			return Call{}, fmt.Errorf("calls: decode actions: %w", err)
		}
	}
	if len(sentiment) > 0 {
		var s Sentiment
		if err := json.Unmarshal(sentiment, &s); err != nil {
			return Call{}, fmt.Errorf("calls: decode sentiment: %w", err)
		}
		c.Sentiment = &s
	}
	if reason.Valid {
		r := reason.String
		c.TransferReason = &r
	}
	if end.Valid {
		t := end.Time
		c.EndTime = &t
	}
	if len(snapshot) > 0 {
		c.ProfileSnapshot = append([]byte(nil), snapshot...)
	}
	return c, nil
}
