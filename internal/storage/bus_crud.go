package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KevinKickass/OpenFieldbusCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveOrUpdateBusComposition saves or updates a bus composition
func (p *PostgresClient) SaveOrUpdateBusComposition(ctx context.Context, comp types.BusComposition) (uuid.UUID, error) {
	defJSON, err := json.Marshal(comp.Composition)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal composition: %w", err)
	}

	var busID uuid.UUID
	err = p.pool.QueryRow(ctx, `
		INSERT INTO bus_configurations (bus_name, master_index, definition, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bus_name)
		DO UPDATE SET
			master_index = EXCLUDED.master_index,
			definition = EXCLUDED.definition,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id
	`, comp.Name, comp.MasterIndex, defJSON, true).Scan(&busID)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert bus configuration: %w", err)
	}

	return busID, nil
}

// LoadEnabledBusCompositions loads all enabled bus compositions
func (p *PostgresClient) LoadEnabledBusCompositions(ctx context.Context) ([]types.BusComposition, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT bus_name, master_index, definition
		FROM bus_configurations
		WHERE enabled = true
		ORDER BY bus_name
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to query bus configurations: %w", err)
	}
	defer rows.Close()

	compositions := make([]types.BusComposition, 0)

	for rows.Next() {
		var comp types.BusComposition
		var defJSON []byte

		if err := rows.Scan(&comp.Name, &comp.MasterIndex, &defJSON); err != nil {
			return nil, fmt.Errorf("failed to scan bus configuration: %w", err)
		}

		if err := json.Unmarshal(defJSON, &comp.Composition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal composition: %w", err)
		}

		compositions = append(compositions, comp)
	}

	return compositions, nil
}

// ListBusConfigurations returns all bus configurations without their definitions
func (p *PostgresClient) ListBusConfigurations(ctx context.Context) ([]BusConfiguration, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, bus_name, master_index, enabled, created_at, updated_at
		FROM bus_configurations
		ORDER BY bus_name
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to query bus configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]BusConfiguration, 0)

	for rows.Next() {
		var c BusConfiguration
		if err := rows.Scan(&c.ID, &c.BusName, &c.MasterIndex, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bus configuration: %w", err)
		}
		configs = append(configs, c)
	}

	return configs, nil
}

// DeleteBusConfiguration removes a bus configuration by name
func (p *PostgresClient) DeleteBusConfiguration(ctx context.Context, busName string) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM bus_configurations
		WHERE bus_name = $1
	`, busName)

	if err != nil {
		return fmt.Errorf("failed to delete bus configuration: %w", err)
	}

	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return nil
}

// InsertBusEvent appends one lifecycle or fault event to the audit log.
func (p *PostgresClient) InsertBusEvent(ctx context.Context, busName, eventType string, cycle int64, domainID *int, detail any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal event detail: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO bus_events (bus_name, event_type, cycle, domain_id, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, busName, eventType, cycle, domainID, detailJSON)

	if err != nil {
		return fmt.Errorf("failed to insert bus event: %w", err)
	}

	return nil
}

// ListBusEvents returns the most recent events for a bus, newest first.
func (p *PostgresClient) ListBusEvents(ctx context.Context, busName string, limit int) ([]BusEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, bus_name, event_type, cycle, domain_id, detail, recorded_at
		FROM bus_events
		WHERE bus_name = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, busName, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query bus events: %w", err)
	}
	defer rows.Close()

	events := make([]BusEvent, 0)

	for rows.Next() {
		var e BusEvent
		if err := rows.Scan(&e.ID, &e.BusName, &e.EventType, &e.Cycle, &e.DomainID, &e.Detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bus event: %w", err)
		}
		events = append(events, e)
	}

	return events, nil
}
