package model

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidDueDate reports an unparseable due date.
var ErrInvalidDueDate = errors.New("invalid due date")

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDueDate parses a stored or submitted due date. An empty string means
// the quest has no deadline. Zone-less values are read as UTC.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ErrInvalidDueDate
}
