package cache

import "encoding/json"

// Entity type segments of the mirror's key space. The remote document keeps
// one map per type.
const (
	TypeAnimals      = "animals"
	TypeBatches      = "batches"
	TypeRoles        = "roles"
	TypeTransactions = "transactions"
)

// KnownType reports whether t is one of the mirrored entity types.
func KnownType(t string) bool {
	switch t {
	case TypeAnimals, TypeBatches, TypeRoles, TypeTransactions:
		return true
	}
	return false
}

// Envelope is the mirror's response wrapper. Large integers inside Data are
// decimal strings; the mirror never re-encodes payloads it stores.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Count   int             `json:"count,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// BulkUpsertRequest is the body of POST /bulk-upsert, the mirror's only
// mutating endpoint.
type BulkUpsertRequest struct {
	EntityType string                     `json:"entity_type"`
	Data       map[string]json.RawMessage `json:"data"`
}

// Stats is the payload of GET /stats.
type Stats struct {
	Animals      int `json:"animals"`
	Batches      int `json:"batches"`
	Roles        int `json:"roles"`
	Transactions int `json:"transactions"`
}

// Health is the payload of GET /health.
type Health struct {
	Status string `json:"status"`
	Stats  Stats  `json:"stats"`
}
