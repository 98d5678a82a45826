package instrument

import (
	"fmt"
	"time"
)

// Snapshot is the complete set of instruments for one vehicle at one
// refresh point. A snapshot is immutable once built; every refresh
// produces a wholly new one.
type Snapshot struct {
	VIN       string
	Model     string
	ModelYear string
	Nickname  string
	Taken     time.Time

	instruments []Instrument
	index       map[Key]int
}

// NewSnapshot builds a snapshot and its lookup index. Duplicate
// (VIN, category, attribute) identities are rejected.
func NewSnapshot(vin, model, modelYear, nickname string, taken time.Time, instruments []Instrument) (*Snapshot, error) {
	index := make(map[Key]int, len(instruments))
	for i := range instruments {
		key := instruments[i].Key()
		if _, exists := index[key]; exists {
			return nil, fmt.Errorf("duplicate instrument %s-%s-%s", key.VIN, key.Category, key.Attribute)
		}
		index[key] = i
	}

	return &Snapshot{
		VIN:         vin,
		Model:       model,
		ModelYear:   modelYear,
		Nickname:    nickname,
		Taken:       taken,
		instruments: instruments,
		index:       index,
	}, nil
}

// Instruments returns the snapshot's instruments in derivation order.
// Callers must not modify the returned slice.
func (s *Snapshot) Instruments() []Instrument {
	return s.instruments
}

// Lookup resolves an instrument by category and attribute.
func (s *Snapshot) Lookup(category Category, attribute string) (Instrument, bool) {
	i, ok := s.index[Key{VIN: s.VIN, Category: category, Attribute: attribute}]
	if !ok {
		return Instrument{}, false
	}
	return s.instruments[i], true
}

// DisplayName resolves the vehicle's friendly name: a configured name
// wins, then the Connect nickname, then the VIN.
func (s *Snapshot) DisplayName(configured string) string {
	if configured != "" {
		return configured
	}
	if s.Nickname != "" {
		return s.Nickname
	}
	return s.VIN
}
