package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

func parsePathID(value string, invalid error) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, invalid
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return 0, invalid
	}
	return parsed, nil
}
