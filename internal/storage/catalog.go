package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/profile"
)

// --- Clients ---

// SaveClient inserts or updates a client. created_at is kept from the first
// insert.
func (s *Store) SaveClient(ctx context.Context, c profile.Client) error {
	prefs, err := json.Marshal(c.Preferences)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	status := c.Status
	if status == "" {
		status = profile.StatusActive
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, status, preferences_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			preferences_json = excluded.preferences_json`,
		c.ID, c.Name, status, string(prefs), formatTime(c.CreatedAt),
	)
	return err
}

func (s *Store) GetClient(ctx context.Context, id string) (profile.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, preferences_json, created_at
		FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err != nil {
		return profile.Client{}, noRows(err)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, limit int) ([]profile.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, preferences_json, created_at
		FROM clients ORDER BY created_at DESC, id ASC LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []profile.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeactivateClient marks a client inactive. Clients are never deleted.
func (s *Store) DeactivateClient(ctx context.Context, id string) error {
	return expectOne(s.db.ExecContext(ctx,
		`UPDATE clients SET status = ? WHERE id = ?`, profile.StatusInactive, id))
}

func scanClient(row scanner) (profile.Client, error) {
	var c profile.Client
	var prefs, createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Status, &prefs, &createdAt); err != nil {
		return profile.Client{}, err
	}
	c.Preferences = profile.DecodePreferences(prefs)
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return profile.Client{}, err
	}
	c.CreatedAt = t
	return c, nil
}

// --- Properties ---

// SaveProperty inserts or updates a listing. New listings are appended to
// the end of the catalog order; updates keep their position.
func (s *Store) SaveProperty(ctx context.Context, p matching.Property) error {
	status := p.Status
	if status == "" {
		status = matching.StatusAvailable
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (id, title, price, type, area, district, city, size, bedrooms, bathrooms, status, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM properties))
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			type = excluded.type,
			area = excluded.area,
			district = excluded.district,
			city = excluded.city,
			size = excluded.size,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			status = excluded.status`,
		p.ID, p.Title, nullFloat(p.Price), p.Type, p.Location.Area, p.Location.District, p.Location.City,
		nullFloat(p.Size), p.Features.Bedrooms, p.Features.Bathrooms, status, formatTime(p.CreatedAt),
	)
	return err
}

const propertyColumns = `id, title, price, type, area, district, city, size, bedrooms, bathrooms, status, created_at`

func (s *Store) GetProperty(ctx context.Context, id string) (matching.Property, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if err != nil {
		return matching.Property{}, noRows(err)
	}
	return p, nil
}

// ListProperties returns listings of any status in catalog order.
func (s *Store) ListProperties(ctx context.Context, limit int) ([]matching.Property, error) {
	return s.queryProperties(ctx, `SELECT `+propertyColumns+`
		FROM properties ORDER BY position ASC LIMIT ?`, limitArg(limit))
}

// ListAvailableProperties returns the candidate catalog in catalog order.
// limit <= 0 returns every available listing.
func (s *Store) ListAvailableProperties(ctx context.Context, limit int) ([]matching.Property, error) {
	return s.queryProperties(ctx, `SELECT `+propertyColumns+`
		FROM properties WHERE status = ? ORDER BY position ASC LIMIT ?`,
		matching.StatusAvailable, limitArg(limit))
}

func (s *Store) queryProperties(ctx context.Context, query string, args ...any) ([]matching.Property, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []matching.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func scanProperty(row scanner) (matching.Property, error) {
	var p matching.Property
	var price, size sql.NullFloat64
	var createdAt string
	if err := row.Scan(&p.ID, &p.Title, &price, &p.Type, &p.Location.Area, &p.Location.District,
		&p.Location.City, &size, &p.Features.Bedrooms, &p.Features.Bathrooms, &p.Status, &createdAt); err != nil {
		return matching.Property{}, err
	}
	if price.Valid {
		p.Price = &price.Float64
	}
	if size.Valid {
		p.Size = &size.Float64
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return matching.Property{}, err
	}
	p.CreatedAt = t
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// limitArg maps "no limit" to SQLite's LIMIT -1.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// --- Interactions ---

func (s *Store) SaveInteraction(ctx context.Context, i Interaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, client_id, kind, created_at)
		VALUES (?, ?, ?, ?)`,
		i.ID, i.ClientID, i.Kind, formatTime(i.CreatedAt),
	)
	return err
}

// ListInteractionsSince returns a client's interactions with
// since <= created_at <= until, oldest first.
func (s *Store) ListInteractionsSince(ctx context.Context, clientID string, since, until time.Time) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, kind, created_at FROM interactions
		WHERE client_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC, id ASC`,
		clientID, formatTime(since), formatTime(until),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Interaction{}
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &i.ClientID, &i.Kind, &createdAt); err != nil {
			return nil, err
		}
		if i.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// --- Market insights ---

func (s *Store) SaveMarketInsight(ctx context.Context, m MarketInsight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_insights (id, title, body, area, property_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			area = excluded.area,
			property_type = excluded.property_type`,
		m.ID, m.Title, m.Body, m.Area, m.PropertyType, formatTime(m.CreatedAt),
	)
	return err
}

// ListMarketInsights returns up to limit insights, newest first. When area
// or propertyType is set, only insights scoped to that area or that type
// (case-insensitive) are returned.
func (s *Store) ListMarketInsights(ctx context.Context, area, propertyType string, limit int) ([]MarketInsight, error) {
	query := `SELECT id, title, body, area, property_type, created_at FROM market_insights`
	var args []any
	if area != "" || propertyType != "" {
		query += ` WHERE (? <> '' AND area = ? COLLATE NOCASE) OR (? <> '' AND property_type = ? COLLATE NOCASE)`
		args = append(args, area, area, propertyType, propertyType)
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	args = append(args, limitArg(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []MarketInsight{}
	for rows.Next() {
		var m MarketInsight
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Title, &m.Body, &m.Area, &m.PropertyType, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
