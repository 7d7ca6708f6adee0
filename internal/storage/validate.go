package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/3ltranslate/legtrans/internal/models"
)

// ValidationError lists the missing fields of a directory entry
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func validateTranslator(t *models.Translator) error {
	t.FirstName = strings.TrimSpace(t.FirstName)
	t.LastName = strings.TrimSpace(t.LastName)
	t.Wilaya = strings.TrimSpace(t.Wilaya)
	t.AccreditationNumber = strings.TrimSpace(t.AccreditationNumber)

	if t.UserID == "" {
		return ErrMissingOwner
	}
	var missing []string
	if t.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if t.LastName == "" {
		missing = append(missing, "last_name")
	}
	if t.Wilaya == "" {
		missing = append(missing, "wilaya")
	}
	if t.AccreditationNumber == "" {
		missing = append(missing, "accreditation_number")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateCode(c *models.ActivationCode) error {
	c.Code = normalizeCode(c.Code)
	if c.Code == "" {
		return errors.New("activation code required")
	}
	if c.DurationDays <= 0 {
		return fmt.Errorf("activation code duration must be positive, got %d", c.DurationDays)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = models.CodeStatusUnused
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}
