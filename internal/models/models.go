package models

import "time"

const (
	DefaultSourceLanguage = "fr"
	DefaultTargetLanguage = "ar"
)

// TranslationRecord is a persisted (source, translation) pair owned by one user
type TranslationRecord struct {
	ID             string    `json:"id" yaml:"id"`
	OwnerID        string    `json:"user_id" yaml:"user_id"`
	SourceText     string    `json:"source_text" yaml:"source_text"`
	TranslatedText string    `json:"translated_text" yaml:"translated_text"`
	SourceLanguage string    `json:"source_language" yaml:"source_language"`
	TargetLanguage string    `json:"target_language" yaml:"target_language"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// Profile represents a user's account row
type Profile struct {
	UserID                string     `json:"user_id"`
	DisplayName           string     `json:"display_name,omitempty"`
	Email                 string     `json:"email,omitempty"`
	IsAdmin               bool       `json:"is_admin"`
	PreferredLanguage     string     `json:"preferred_language,omitempty"`
	Profession            string     `json:"profession,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Translator is a sworn translator directory entry
type Translator struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	Wilaya              string    `json:"wilaya"`
	AccreditationNumber string    `json:"accreditation_number"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	OfficeAddress       string    `json:"office_address,omitempty"`
	Bio                 string    `json:"bio,omitempty"`
	ImageURL            string    `json:"image_url,omitempty"`
	Languages           []string  `json:"languages,omitempty"`
	Specialties         []string  `json:"specialties,omitempty"`
	Verified            bool      `json:"verified"`
	CreatedAt           time.Time `json:"created_at"`
}

// FullName returns "First Last"
func (t Translator) FullName() string {
	return t.FirstName + " " + t.LastName
}

const (
	CodeStatusUnused = "unused"
	CodeStatusUsed   = "used"
)

// ActivationCode grants DurationDays of subscription when redeemed
type ActivationCode struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	DurationDays int        `json:"duration_days"`
	Status       string     `json:"status"`
	UsedBy       string     `json:"used_by,omitempty"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
