// Package profile builds the profile layer a page resolves against: system
// values that every viewer gets, plus the user's saved profile values when
// the viewer is eligible for them.
package profile

import (
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/promptfinder/internal/variable"
)

// System keys. All carry variable.SystemPrefix.
const (
	KeyToday    = "sys_today"
	KeyDate     = "sys_date"
	KeyTime     = "sys_time"
	KeyDateTime = "sys_datetime"
	KeyTimezone = "sys_timezone"
	KeyWeekday  = "sys_weekday"
	KeyYear     = "sys_year"
)

// SystemVars returns the system-generated values for now, in now's location.
func SystemVars(now time.Time) map[string]any {
	zone, _ := now.Zone()
	return map[string]any{
		KeyToday:    now.Format("2006-01-02"),
		KeyDate:     now.Format("January 2, 2006"),
		KeyTime:     now.Format("15:04"),
		KeyDateTime: now.Format(time.RFC3339),
		KeyTimezone: zone,
		KeyWeekday:  now.Weekday().String(),
		KeyYear:     strconv.Itoa(now.Year()),
	}
}

// Eligible reports whether a viewer gets their saved profile values on a
// workflow page. Both conditions must hold.
func Eligible(loggedIn, useProfileDefaults bool) bool {
	return loggedIn && useProfileDefaults
}

// Build assembles the profile layer. System values are always present. User
// values are added only when eligible; they are normalized and can never
// replace a system value.
func Build(now time.Time, user map[string]string, eligible bool) variable.ProfileVars {
	pv := variable.NewProfileVars(SystemVars(now))
	if !eligible {
		return pv
	}
	for k, v := range user {
		key := variable.Normalize(k)
		if key == "" || IsReserved(key) {
			continue
		}
		pv[key] = v
	}
	return pv
}

// IsReserved reports whether key belongs to the system namespace.
func IsReserved(key string) bool {
	return strings.HasPrefix(variable.Normalize(key), variable.SystemPrefix)
}

// Location loads a timezone by name. Empty or unknown names yield time.Local.
func Location(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
