package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PositionRecord is a persisted position as stored: indexed columns plus
// the JSON document.
type PositionRecord struct {
	ID           string
	Username     string
	VaultAddress string
	Status       PositionStatus
	ExitTxHash   string
	Document     []byte
	UpdatedAt    time.Time
}

// EncodePositionRecord serialises a position for storage.
func EncodePositionRecord(pos Position, owner, vault string) (PositionRecord, error) {
	pos.Username = owner
	pos.VaultAddress = vault
	doc, err := json.Marshal(pos)
	if err != nil {
		return PositionRecord{}, fmt.Errorf("encode position %s: %w", pos.ID, err)
	}
	return PositionRecord{
		ID:           pos.ID,
		Username:     owner,
		VaultAddress: vault,
		Status:       pos.Status,
		ExitTxHash:   pos.ExitTxHash,
		Document:     doc,
		UpdatedAt:    pos.UpdatedAt,
	}, nil
}

// Decode re-hydrates the position. Indexed columns win over the document
// because status updates touch the columns only.
func (r PositionRecord) Decode() (Position, error) {
	var pos Position
	if err := json.Unmarshal(r.Document, &pos); err != nil {
		return Position{}, fmt.Errorf("decode position %s: %w", r.ID, err)
	}
	pos.ID = r.ID
	if r.Status != "" {
		pos.Status = r.Status
	}
	if r.Username != "" {
		pos.Username = r.Username
	}
	if r.VaultAddress != "" {
		pos.VaultAddress = r.VaultAddress
	}
	if r.ExitTxHash != "" {
		pos.ExitTxHash = r.ExitTxHash
	}
	if len(pos.Signal.Targets) == 0 {
		return Position{}, fmt.Errorf("decode position %s: no targets", r.ID)
	}
	if len(pos.TrailingStop.TargetsHit) != len(pos.Signal.Targets) {
		return Position{}, fmt.Errorf("decode position %s: %d target flags for %d targets",
			r.ID, len(pos.TrailingStop.TargetsHit), len(pos.Signal.Targets))
	}
	if pos.TrailingStop.TargetsHit[0] && !pos.TrailingStop.TP1Hit {
		pos.TrailingStop.TP1Hit = true
		pos.TrailingStop.IsActive = true
	}
	return pos, nil
}
