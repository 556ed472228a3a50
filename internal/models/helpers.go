package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{1,64}$`)

func GenerateSessionID() string {
	return uuid.New().String()
}

func GenerateNotificationID() string {
	return uuid.New().String()
}

// NormalizeAddress lowercases a Sui address or object ID and validates its shape.
func NormalizeAddress(addr string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(addr))
	if !addressPattern.MatchString(a) {
		return "", fmt.Errorf("invalid address: %q", addr)
	}
	return a, nil
}

func FormatSui(mist uint64) string {
	return MistToSui(mist).StringFixed(4) + " SUI"
}
