package events

import (
	"strconv"
	"strings"
)

func normalizeUnit(unit string) string {
	trimmed := strings.TrimSpace(unit)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
