package pgstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
)

// RoomRecord stores the whole room as one jsonb document. Participant ids and
// completion are copied into their own columns for history queries.
type RoomRecord struct {
	Code           string         `gorm:"primaryKey;size:6"`
	Version        int64          `gorm:"not null"`
	Document       datatypes.JSON `gorm:"type:jsonb;not null"`
	ParticipantIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	Completed      bool           `gorm:"not null;default:false;index"`
	CreatedAt      time.Time
	EndedAt        *time.Time `gorm:"index"`
}

func (RoomRecord) TableName() string { return "rooms" }

func toRecord(r room.Room, version int64) (RoomRecord, error) {
	r.Version = version
	doc, err := json.Marshal(r)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("encode room %s: %w", r.Code, err)
	}
	ids := r.ParticipantIDs
	if ids == nil {
		ids = []string{}
	}
	participants, err := json.Marshal(ids)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("encode participants %s: %w", r.Code, err)
	}
	return RoomRecord{
		Code:           r.Code,
		Version:        version,
		Document:       datatypes.JSON(doc),
		ParticipantIDs: datatypes.JSON(participants),
		Completed:      r.Completed,
		CreatedAt:      r.CreatedAt,
		EndedAt:        r.EndedAt,
	}, nil
}

func (rec RoomRecord) toRoom() (room.Room, error) {
	var r room.Room
	if err := json.Unmarshal(rec.Document, &r); err != nil {
		return room.Room{}, fmt.Errorf("decode room %s: %w", rec.Code, err)
	}
	r.Version = rec.Version
	return r, nil
}
