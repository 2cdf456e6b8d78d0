package models

import "github.com/google/uuid"

type ContactMessage struct {
	BaseModel
	AuthorID uuid.UUID `json:"authorID" gorm:"type:uuid;not null;index"`
	Body     string    `json:"message" gorm:"type:text;not null"`

	Author User `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID"`
}
