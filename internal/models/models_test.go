package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionLicense(t *testing.T) {
	tests := []struct {
		from, to LicenseStatus
		want     bool
	}{
		{LicenseStatusPending, LicenseStatusActive, true},
		{LicenseStatusActive, LicenseStatusSuspended, true},
		{LicenseStatusSuspended, LicenseStatusActive, true},
		{LicenseStatusActive, LicenseStatusExpired, true},
		{LicenseStatusExpired, LicenseStatusRevoked, true},
		{LicenseStatusExpired, LicenseStatusActive, false},
		{LicenseStatusRevoked, LicenseStatusActive, false},
		{LicenseStatusRevoked, LicenseStatusRevoked, false},
		{LicenseStatusPending, LicenseStatusSuspended, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionLicense(tt.from, tt.to))
		})
	}
}

func TestCanTransitionDemo(t *testing.T) {
	assert.True(t, CanTransitionDemo(DemoStatusActive, DemoStatusExpired))
	assert.True(t, CanTransitionDemo(DemoStatusActive, DemoStatusAbandoned))
	assert.True(t, CanTransitionDemo(DemoStatusExpired, DemoStatusConverted))
	assert.False(t, CanTransitionDemo(DemoStatusExpired, DemoStatusActive))
	assert.False(t, CanTransitionDemo(DemoStatusConverted, DemoStatusExpired))
	assert.False(t, CanTransitionDemo(DemoStatusAbandoned, DemoStatusConverted))
}

func TestLicenseStatus_BlocksActivation(t *testing.T) {
	assert.False(t, LicenseStatusPending.BlocksActivation())
	assert.False(t, LicenseStatusActive.BlocksActivation())
	assert.True(t, LicenseStatusSuspended.BlocksActivation())
	assert.True(t, LicenseStatusExpired.BlocksActivation())
	assert.True(t, LicenseStatusRevoked.BlocksActivation())
}

func TestDemoSession_Helpers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := DemoSession{
		AllowedFeatures:  []string{"projects.core"},
		FeaturesAccessed: []string{"projects.core"},
		RemindersSent:    []string{"3d"},
		RestrictionsHit:  []Restriction{{Type: RestrictionFeatureLocked, Feature: "export.pdf"}},
		ExpiresAt:        now.Add(time.Hour),
	}

	assert.True(t, s.Allows("projects.core"))
	assert.False(t, s.Allows("export.pdf"))
	assert.True(t, s.HasAccessed("projects.core"))
	assert.True(t, s.Reminded("3d"))
	assert.False(t, s.Reminded("1d"))
	assert.True(t, s.HasRestriction(RestrictionFeatureLocked, "export.pdf"))
	assert.Equal(t, time.Hour, s.Remaining(now))
	assert.Equal(t, time.Duration(0), s.Remaining(now.Add(2*time.Hour)))

	s.AllowedFeatures = []string{FeatureAll}
	assert.True(t, s.Allows("anything"))
}

func TestExtensions_Validate(t *testing.T) {
	ok := Extensions{
		"plan":  "pro",
		"seats": 5,
		"tags":  []any{"a", 1.5, nil},
		"nested": map[string]any{
			"raw": json.RawMessage(`{"x":1}`),
		},
	}
	assert.NoError(t, ok.Validate())

	assert.Error(t, Extensions{"ch": make(chan int)}.Validate())
	assert.Error(t, Extensions{"raw": json.RawMessage(`{bad`)}.Validate())
	assert.Error(t, Extensions{"deep": []any{map[string]any{"f": func() {}}}}.Validate())
}

func TestRole(t *testing.T) {
	assert.True(t, RoleAdmin.IsAdmin())
	assert.True(t, RoleSuperAdmin.IsAdmin())
	assert.False(t, RoleUser.IsAdmin())
	assert.True(t, RoleTeamMember.Valid())
	assert.False(t, Role("OWNER").Valid())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
}
