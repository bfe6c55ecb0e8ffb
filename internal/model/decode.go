package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// wireChangeRecord mirrors ChangeRecord with undecoded snapshots
type wireChangeRecord struct {
	Identity     string          `json:"identity"`
	Category     Category        `json:"category"`
	ChangeKind   ChangeKind      `json:"change_kind"`
	Previous     json.RawMessage `json:"previous,omitempty"`
	Current      json.RawMessage `json:"current,omitempty"`
	MatchedRules []MatchedRule   `json:"matched_rules,omitempty"`
}

// UnmarshalJSON decodes the snapshots into the entity type of the record's category
func (r *ChangeRecord) UnmarshalJSON(data []byte) error {
	var wire wireChangeRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	if wire.Category == "" {
		wire.Category = CategoryUnknown
	}
	if !wire.Category.Valid() {
		return fmt.Errorf("unknown category: %q", wire.Category)
	}
	if wire.ChangeKind == "" {
		wire.ChangeKind = ChangeUnknown
	}
	if !wire.ChangeKind.Valid() {
		return fmt.Errorf("unknown change kind: %q", wire.ChangeKind)
	}

	previous, err := decodeEntity(wire.Category, wire.Previous)
	if err != nil {
		return fmt.Errorf("failed to decode previous snapshot: %w", err)
	}
	current, err := decodeEntity(wire.Category, wire.Current)
	if err != nil {
		return fmt.Errorf("failed to decode current snapshot: %w", err)
	}

	*r = ChangeRecord{
		Identity:     wire.Identity,
		Category:     wire.Category,
		ChangeKind:   wire.ChangeKind,
		Previous:     previous,
		Current:      current,
		MatchedRules: wire.MatchedRules,
	}
	if r.Identity == "" {
		switch {
		case current != nil:
			r.Identity = current.Identity()
		case previous != nil:
			r.Identity = previous.Identity()
		}
	}
	return nil
}

func decodeEntity(c Category, raw json.RawMessage) (Entity, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	entity := NewEntity(c)
	if entity == nil {
		return nil, fmt.Errorf("category %s has no snapshot type", c)
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// DecodeChangeRecords accepts either a single change record or an array of them
func DecodeChangeRecords(data []byte) ([]*ChangeRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty change record payload")
	}

	if trimmed[0] == '[' {
		var records []*ChangeRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal change records: %w", err)
		}
		return records, nil
	}

	var record ChangeRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change record: %w", err)
	}
	return []*ChangeRecord{&record}, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
