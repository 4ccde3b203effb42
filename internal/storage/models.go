package storage

import (
	"time"

	"github.com/google/uuid"
)

type BusConfiguration struct {
	ID          uuid.UUID `json:"id"`
	BusName     string    `json:"bus_name"`
	MasterIndex int       `json:"master_index"`
	Definition  []byte    `json:"definition"` // JSONB
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type BusEvent struct {
	ID         uuid.UUID `json:"id"`
	BusName    string    `json:"bus_name"`
	EventType  string    `json:"event_type"`
	Cycle      int64     `json:"cycle"`
	DomainID   *int      `json:"domain_id"`
	Detail     []byte    `json:"detail"` // JSONB
	RecordedAt time.Time `json:"recorded_at"`
}
