package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EntityID identifies an animal, batch, cut or token on the ledger. The
// ledger's id space is 64-bit, which overflows JSON number precision, so ids
// cross every wire boundary as decimal strings.
type EntityID uint64

// Zero means unassigned (an animal not yet in a batch).
func (id EntityID) IsZero() bool { return id == 0 }

func (id EntityID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseEntityID parses a decimal string id.
func ParseEntityID(s string) (EntityID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse entity id %q: %w", s, err)
	}
	return EntityID(n), nil
}

func (id EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *EntityID) UnmarshalJSON(data []byte) error {
	n, err := unmarshalUint64(data)
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}
	*id = EntityID(n)
	return nil
}

// Grams is a weight in grams. Same decimal-string contract as EntityID: the
// ledger stores weights as 128-bit integers and floating-point JSON numbers
// would corrupt them.
type Grams uint64

func (g Grams) String() string { return strconv.FormatUint(uint64(g), 10) }

func (g Grams) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *Grams) UnmarshalJSON(data []byte) error {
	n, err := unmarshalUint64(data)
	if err != nil {
		return fmt.Errorf("grams: %w", err)
	}
	*g = Grams(n)
	return nil
}

// ParseGrams parses a decimal string weight.
func ParseGrams(s string) (Grams, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse grams %q: %w", s, err)
	}
	return Grams(n), nil
}

// unmarshalUint64 accepts both "123" and 123 on the way in; peers that still
// emit bare numbers stay readable, we only ever emit strings.
func unmarshalUint64(data []byte) (uint64, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strconv.ParseUint(s, 10, 64)
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("expected decimal string or integer, got %s", data)
	}
	return n, nil
}
