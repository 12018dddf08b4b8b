// Package licensekey содержит чистые функции работы с лицензионными ключами:
// генерацию ключей с префиксом уровня, проверку формата, вычисление отпечатка
// устройства и таблицу наборов функций и лимитов по уровням.
package licensekey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

// ErrUnknownTier возвращается для уровня, отсутствующего в таблице.
var ErrUnknownTier = errors.New("unknown tier")

const randomBytes = 8

// FeatureTransfer разрешает передачу лицензии другой учётной записи.
const FeatureTransfer = "license.transfer"

var keyPattern = regexp.MustCompile(`^(BSC|PRO|ENT)-[0-9A-Z]{6,13}-[0-9A-F]{16}$`)

// Bundle — набор функций и лимитов уровня.
type Bundle struct {
	Prefix   string
	Features []string
	Limits   models.Limits
}

var (
	basicFeatures = []string{
		"projects.core",
		"projects.view",
		"tasks.basic",
		"dashboard.view",
		"export.csv",
	}
	proFeatures = append(append([]string{}, basicFeatures...),
		"workflow.automation",
		"reports.advanced",
		"export.pdf",
		"integrations.api",
	)
	enterpriseFeatures = append(append([]string{}, proFeatures...),
		"sso",
		"audit.logs",
		"team.management",
		FeatureTransfer,
		"support.priority",
	)
)

var bundles = map[models.Tier]Bundle{
	models.TierBasic: {
		Prefix:   "BSC",
		Features: basicFeatures,
		Limits:   models.Limits{MaxActivations: 1, MaxSeats: 1},
	},
	models.TierPro: {
		Prefix:   "PRO",
		Features: proFeatures,
		Limits:   models.Limits{MaxActivations: 3, MaxSeats: 5},
	},
	models.TierEnterprise: {
		Prefix:   "ENT",
		Features: enterpriseFeatures,
		Limits:   models.Limits{MaxActivations: 5, MaxSeats: 50},
	},
}

// BundleFor возвращает копию набора функций и лимитов уровня.
func BundleFor(tier models.Tier) (Bundle, error) {
	b, ok := bundles[tier]
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	b.Features = append([]string(nil), b.Features...)
	return b, nil
}

// BasicFeatures возвращает функции уровня BASIC.
func BasicFeatures() []string {
	return append([]string(nil), basicFeatures...)
}

// Generate создаёт ключ вида {PREFIX}-{время в base36}-{16 hex символов}.
func Generate(tier models.Tier, now time.Time) (string, error) {
	return generate(tier, now, rand.Reader)
}

func generate(tier models.Tier, now time.Time, src io.Reader) (string, error) {
	const op = "licensekey.Generate"
	b, ok := bundles[tier]
	if !ok {
		return "", fmt.Errorf("%s: %w: %q", op, ErrUnknownTier, tier)
	}

	buf := make([]byte, randomBytes)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return b.Prefix + "-" + ts + "-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Normalize приводит введённый пользователем ключ к каноническому виду.
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidFormat проверяет формат ключа без обращения к хранилищу.
func ValidFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// TierOf определяет уровень по префиксу ключа.
func TierOf(key string) (models.Tier, bool) {
	prefix, _, found := strings.Cut(key, "-")
	if !found {
		return "", false
	}
	for tier, b := range bundles {
		if b.Prefix == prefix {
			return tier, true
		}
	}
	return "", false
}

// Fingerprint вычисляет стабильный SHA-256 отпечаток устройства.
// Порядок атрибутов и регистр значений не влияют на результат.
func Fingerprint(d models.DeviceInfo) string {
	attrs := map[string]string{
		"machine": d.MachineID,
		"host":    d.Hostname,
		"os":      d.OS,
		"os_ver":  d.OSVersion,
		"arch":    d.Arch,
	}
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
