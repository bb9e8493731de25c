package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// --- Match ledger ---

const matchColumns = `client_id, property_id, match_score, match_reasons_json, created_at, updated_at, was_sent, client_response`

// UpsertMatchRecord writes the score and reasons for a (client, property)
// pair. An existing record keeps its created_at, was_sent and
// client_response; those belong to the delivery process.
func (s *Store) UpsertMatchRecord(ctx context.Context, r MatchRecord) error {
	reasons := r.MatchReasons
	if reasons == nil {
		reasons = []string{}
	}
	encoded, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("encoding match reasons: %w", err)
	}
	now := formatTime(r.UpdatedAt)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_records (client_id, property_id, match_score, match_reasons_json, created_at, updated_at, was_sent, client_response)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL)
		ON CONFLICT(client_id, property_id) DO UPDATE SET
			match_score = excluded.match_score,
			match_reasons_json = excluded.match_reasons_json,
			updated_at = excluded.updated_at`,
		r.ClientID, r.PropertyID, r.MatchScore, string(encoded), now, now,
	)
	return err
}

// ListMatchRecords returns the whole ledger for a client, best score first.
func (s *Store) ListMatchRecords(ctx context.Context, clientID string) ([]MatchRecord, error) {
	return s.queryMatchRecords(ctx, `SELECT `+matchColumns+` FROM match_records
		WHERE client_id = ? ORDER BY match_score DESC, property_id ASC`, clientID)
}

// ListSentMatchRecords returns the records already offered to a client.
func (s *Store) ListSentMatchRecords(ctx context.Context, clientID string) ([]MatchRecord, error) {
	return s.queryMatchRecords(ctx, `SELECT `+matchColumns+` FROM match_records
		WHERE client_id = ? AND was_sent = 1 ORDER BY updated_at DESC, property_id ASC`, clientID)
}

// MarkMatchDelivered records that a match was sent and, when response is
// non-empty, the client's answer.
func (s *Store) MarkMatchDelivered(ctx context.Context, clientID, propertyID, response string) error {
	return expectOne(s.db.ExecContext(ctx, `
		UPDATE match_records
		SET was_sent = 1,
			client_response = COALESCE(NULLIF(?, ''), client_response),
			updated_at = ?
		WHERE client_id = ? AND property_id = ?`,
		response, formatTime(time.Now()), clientID, propertyID,
	))
}

// ClearMatchLedger deletes every record for a client so that previously
// offered listings become candidates again. It returns the number removed.
func (s *Store) ClearMatchLedger(ctx context.Context, clientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM match_records WHERE client_id = ?`, clientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryMatchRecords(ctx context.Context, query string, args ...any) ([]MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []MatchRecord{}
	for rows.Next() {
		var r MatchRecord
		var reasons, createdAt, updatedAt string
		var response sql.NullString
		if err := rows.Scan(&r.ClientID, &r.PropertyID, &r.MatchScore, &reasons,
			&createdAt, &updatedAt, &r.WasSent, &response); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reasons), &r.MatchReasons); err != nil {
			return nil, fmt.Errorf("decoding match reasons for %s/%s: %w", r.ClientID, r.PropertyID, err)
		}
		if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		r.ClientResponse = response.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Intent scores ---

// SaveIntentScore appends a score to the client's history.
func (s *Store) SaveIntentScore(ctx context.Context, r IntentScoreRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intent_scores (id, client_id, overall_score, calculated_at)
		VALUES (?, ?, ?, ?)`,
		r.ID, r.ClientID, r.OverallScore, formatTime(r.CalculatedAt),
	)
	return err
}

// LatestIntentScore returns the most recent score for a client, or
// ErrNotFound when none was ever recorded.
func (s *Store) LatestIntentScore(ctx context.Context, clientID string) (IntentScoreRecord, error) {
	var r IntentScoreRecord
	var calculatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, overall_score, calculated_at FROM intent_scores
		WHERE client_id = ? ORDER BY calculated_at DESC, rowid DESC LIMIT 1`, clientID,
	).Scan(&r.ID, &r.ClientID, &r.OverallScore, &calculatedAt)
	if err != nil {
		return IntentScoreRecord{}, noRows(err)
	}
	if r.CalculatedAt, err = parseTime("calculated_at", calculatedAt); err != nil {
		return IntentScoreRecord{}, err
	}
	return r, nil
}

// --- Operation log ---

func (s *Store) AppendOperationLog(ctx context.Context, e OperationLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_log (id, operation, client_id, status, execution_ms, input_summary, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Operation, e.ClientID, e.Status, e.ExecutionMS, e.InputSummary, e.Error, formatTime(e.CreatedAt),
	)
	return err
}

// ListOperationLogs returns the newest entries first.
func (s *Store) ListOperationLogs(ctx context.Context, limit int) ([]OperationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, client_id, status, execution_ms, input_summary, error, created_at
		FROM operation_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []OperationLog{}
	for rows.Next() {
		var e OperationLog
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Operation, &e.ClientID, &e.Status, &e.ExecutionMS,
			&e.InputSummary, &e.Error, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
