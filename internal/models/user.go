package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Name            string   `json:"name" gorm:"type:varchar(100);not null"`
	Email           string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash    string   `json:"-" gorm:"type:text"` // empty for OAuth-only accounts
	Role            UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	IsActive        bool     `json:"isActive" gorm:"not null;default:true"`
	IsEmailVerified bool     `json:"isEmailVerified" gorm:"not null;default:false"`
	AuthProvider    *string  `json:"authProvider,omitempty" gorm:"type:varchar(20)"`

	Media           []Media          `json:"-" gorm:"foreignKey:OwnerID"`
	ContactMessages []ContactMessage `json:"-" gorm:"foreignKey:AuthorID"`
}
