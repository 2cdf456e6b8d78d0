package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Tags is an ordered list of tag strings stored as a JSON text column, so a
// media row carries its tags on both postgres and sqlite without a join table.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Tags) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported tags column type %T", value)
	}
}

func (Tags) GormDataType() string {
	return "text"
}

// ContainsAll reports whether every wanted tag appears in the set.
func (t Tags) ContainsAll(wanted []string) bool {
	for _, w := range wanted {
		found := false
		for _, have := range t {
			if have == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type Media struct {
	BaseModel
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	Tags        Tags      `json:"tags" gorm:"type:text"`
	Shared      bool      `json:"shared" gorm:"not null;default:false;index"`
	OwnerID     uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`

	Owner User        `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Files []MediaFile `json:"files" gorm:"foreignKey:MediaID"`
}

type MediaFile struct {
	BaseModel
	MediaID     uuid.UUID `json:"mediaID" gorm:"type:uuid;not null;index"`
	FileName    string    `json:"fileName" gorm:"type:varchar(255);not null"`
	MimeType    string    `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size        int64     `json:"size" gorm:"not null;default:0"`
	StoragePath string    `json:"-" gorm:"type:text;not null"`
}
