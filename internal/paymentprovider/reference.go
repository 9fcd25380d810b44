package paymentprovider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// ErrBadReference external_reference не в формате user_<id>_<plan>_<unixMillis>.
var ErrBadReference = errors.New("malformed external reference")

const referencePrefix = "user_"

// Reference разобранный external_reference платежа.
type Reference struct {
	UserID    string
	Plan      models.PlanType
	CreatedAt time.Time
}

// FormatReference собирает external_reference для преференции.
func FormatReference(userID string, plan models.PlanType, at time.Time) string {
	return fmt.Sprintf("%s%s_%s_%d", referencePrefix, userID, plan, at.UnixMilli())
}

// ParseReference разбирает external_reference. Идентификатор пользователя может
// содержать подчёркивания, поэтому тариф и время отрезаются справа.
func ParseReference(s string) (Reference, error) {
	rest, ok := strings.CutPrefix(s, referencePrefix)
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}

	i := strings.LastIndexByte(rest, '_')
	if i < 0 {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	millis, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	rest = rest[:i]

	j := strings.LastIndexByte(rest, '_')
	if j <= 0 {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	plan, err := models.ParsePlanType(rest[j+1:])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %w", ErrBadReference, err)
	}

	return Reference{
		UserID:    rest[:j],
		Plan:      plan,
		CreatedAt: time.UnixMilli(millis).UTC(),
	}, nil
}
