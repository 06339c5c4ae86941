package lifecycle

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	orderNumberPrefix      = "AGR"
	orderNumberSuffixLen   = 6
	maxOrderNumberAttempts = 5
)

var orderNumberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOrderNumber формирует номер вида AGR-20260315-K3QZ7M.
// Суффикс берётся из случайного UUID; уникальность всё равно проверяется при сохранении.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	suffix := orderNumberEncoding.EncodeToString(id[:])[:orderNumberSuffixLen]
	return strings.Join([]string{orderNumberPrefix, now.UTC().Format("20060102"), suffix}, "-")
}
