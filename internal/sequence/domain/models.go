package domain

import "time"

// Sequence is the durable receipt counter for one numbering scope.
type Sequence struct {
	Scope     string    `gorm:"primaryKey;type:varchar(128)"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Sequence) TableName() string { return "receipt_sequences" }

// Scope identifies a numbering scope. Key is stored on receipts, Code is
// rendered by the {SCOPE} template token.
type Scope struct {
	Key  string
	Code string
}
