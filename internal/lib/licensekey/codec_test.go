package licensekey

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

func TestGenerate_FormatPerTier(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		tier   models.Tier
		prefix string
	}{
		{tier: models.TierBasic, prefix: "BSC-"},
		{tier: models.TierPro, prefix: "PRO-"},
		{tier: models.TierEnterprise, prefix: "ENT-"},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			key, err := Generate(tt.tier, now)
			require.NoError(t, err)

			assert.True(t, ValidFormat(key), key)
			assert.Equal(t, tt.prefix, key[:4])

			tier, ok := TierOf(key)
			require.True(t, ok)
			assert.Equal(t, tt.tier, tier)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	src := bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02, 0x03})

	key, err := generate(models.TierPro, now, src)
	require.NoError(t, err)
	assert.Equal(t, "PRO-LOYW3V28-DEADBEEF00010203", key)
}

func TestGenerate_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		key, err := Generate(models.TierBasic, now)
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(models.Tier("GOLD"), time.Now())
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = generate(models.TierBasic, time.Now(), bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestValidFormat(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{key: "BSC-LOYW3V28-DEADBEEF00010203", want: true},
		{key: "ENT-LOYW3V28-0123456789ABCDEF", want: true},
		{key: "bsc-loyw3v28-deadbeef00010203", want: false},
		{key: "XXX-LOYW3V28-DEADBEEF00010203", want: false},
		{key: "BSC-LOYW3V28-DEADBEEF", want: false},
		{key: "BSC--DEADBEEF00010203", want: false},
		{key: "", want: false},
		{key: "not a key", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidFormat(tt.key))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "BSC-LOYW3V28-DEADBEEF00010203", Normalize("  bsc-loyw3v28-deadbeef00010203 \n"))
}

func TestBundleFor(t *testing.T) {
	tests := []struct {
		tier           models.Tier
		maxActivations int
		maxSeats       int
		feature        string
	}{
		{tier: models.TierBasic, maxActivations: 1, maxSeats: 1, feature: "projects.core"},
		{tier: models.TierPro, maxActivations: 3, maxSeats: 5, feature: "workflow.automation"},
		{tier: models.TierEnterprise, maxActivations: 5, maxSeats: 50, feature: "license.transfer"},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			b, err := BundleFor(tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.maxActivations, b.Limits.MaxActivations)
			assert.Equal(t, tt.maxSeats, b.Limits.MaxSeats)
			assert.Contains(t, b.Features, tt.feature)
		})
	}

	basic, err := BundleFor(models.TierBasic)
	require.NoError(t, err)
	assert.NotContains(t, basic.Features, "workflow.automation")

	_, err = BundleFor("GOLD")
	assert.True(t, errors.Is(err, ErrUnknownTier))
}

func TestBundleFor_ReturnsCopy(t *testing.T) {
	b, err := BundleFor(models.TierBasic)
	require.NoError(t, err)
	b.Features[0] = "mutated"

	again, err := BundleFor(models.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, "projects.core", again.Features[0])
}

func TestFingerprint(t *testing.T) {
	d := models.DeviceInfo{MachineID: "abc-123", Hostname: "Workstation", OS: "linux", Arch: "amd64"}

	fp := Fingerprint(d)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(d), "stable")

	upper := d
	upper.Hostname = "WORKSTATION "
	assert.Equal(t, fp, Fingerprint(upper), "case and whitespace insensitive")

	upper.AppVersion = "2.0.0"
	assert.Equal(t, fp, Fingerprint(upper), "app version is not part of the device identity")

	other := d
	other.MachineID = "xyz-789"
	assert.NotEqual(t, fp, Fingerprint(other))
}
