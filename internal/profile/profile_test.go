package profile

import (
	"testing"
	"time"

	"github.com/randalmurphal/promptfinder/internal/variable"
)

func TestSystemVars(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 9, 5, 0, 0, time.UTC)
	vars := SystemVars(now)

	expected := map[string]string{
		KeyToday:    "2025-01-01",
		KeyDate:     "January 1, 2025",
		KeyTime:     "09:05",
		KeyDateTime: "2025-01-01T09:05:00Z",
		KeyTimezone: "UTC",
		KeyWeekday:  "Wednesday",
		KeyYear:     "2025",
	}
	for k, want := range expected {
		if got := vars[k]; got != want {
			t.Errorf("%s: expected %q, got %v", k, want, got)
		}
	}
	if len(vars) != len(expected) {
		t.Errorf("expected %d keys, got %d", len(expected), len(vars))
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		loggedIn, useDefaults, want bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}
	for _, tt := range tests {
		if got := Eligible(tt.loggedIn, tt.useDefaults); got != tt.want {
			t.Errorf("Eligible(%v, %v) = %v, want %v", tt.loggedIn, tt.useDefaults, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	user := map[string]string{
		" Company ": "Acme",
		"sys_today": "forged",
		"":          "no key",
	}

	t.Run("eligible", func(t *testing.T) {
		t.Parallel()
		pv := Build(now, user, true)
		if v, _ := pv.Lookup("company"); v != "Acme" {
			t.Errorf("expected normalized user value, got %v", v)
		}
		if v, _ := pv.Lookup(KeyToday); v != "2025-01-01" {
			t.Errorf("user value must not override system key, got %v", v)
		}
	})

	t.Run("not eligible", func(t *testing.T) {
		t.Parallel()
		pv := Build(now, user, false)
		if _, ok := pv.Lookup("company"); ok {
			t.Error("expected user values to be withheld")
		}
		if _, ok := pv.Lookup(KeyYear); !ok {
			t.Error("expected system values regardless of eligibility")
		}
	})
}

func TestBuildResolvesSystemWithoutProfileAccess(t *testing.T) {
	t.Parallel()

	pv := Build(time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), nil, false)
	r := variable.NewResolver(pv, nil)
	defs := variable.BuildMap([]variable.Row{variable.Row(`{"key":"sys_today","prefer_system":true}`)}, variable.ScopeStep)

	got := r.Render("Due {sys_today}", &variable.ResolutionContext{StepDefs: defs})
	if got != "Due 2025-03-03" {
		t.Errorf("expected system date, got %q", got)
	}
}

func TestIsReservedAndLocation(t *testing.T) {
	t.Parallel()

	if !IsReserved(" SYS_today") {
		t.Error("expected sys_ key to be reserved")
	}
	if IsReserved("system") {
		t.Error("did not expect 'system' to be reserved")
	}
	if Location("") != time.Local || Location("Not/AZone") != time.Local {
		t.Error("expected local fallback")
	}
	if Location("UTC").String() != "UTC" {
		t.Error("expected UTC location")
	}
}
