// Package sms holds the message model shared by the store, transport, and
// router packages.
package sms

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction classifies a message as received or sent.
type Direction string

const (
	// DirectionInbound is a received message (inbox collection).
	DirectionInbound Direction = "INBOUND"
	// DirectionOutbound is a sent message (sent collection).
	DirectionOutbound Direction = "OUTBOUND"
)

// Platform numeric type codes for the inbox and sent collections.
const (
	TypeInbox = 1
	TypeSent  = 2
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound:
		return true
	default:
		return false
	}
}

// TypeCode returns the platform numeric type code for d, or 0 when d is invalid.
func (d Direction) TypeCode() int {
	switch d {
	case DirectionInbound:
		return TypeInbox
	case DirectionOutbound:
		return TypeSent
	default:
		return 0
	}
}

// DirectionFromType maps a platform numeric type code to a Direction.
// Codes other than inbox are reported as outbound (sent, outbox, queued, failed).
func DirectionFromType(code int) Direction {
	if code == TypeInbox {
		return DirectionInbound
	}
	return DirectionOutbound
}

// ParseDirection accepts "INBOUND"/"OUTBOUND" (any case) or the numeric type
// codes "1"/"2".
func ParseDirection(raw string) (Direction, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch value {
	case string(DirectionInbound), "INBOX", "RECEIVED":
		return DirectionInbound, nil
	case string(DirectionOutbound), "SENT":
		return DirectionOutbound, nil
	}
	if code, err := strconv.Atoi(value); err == nil {
		switch code {
		case TypeInbox:
			return DirectionInbound, nil
		case TypeSent:
			return DirectionOutbound, nil
		}
	}
	return "", fmt.Errorf("sms: invalid direction %q", raw)
}

// Message is one SMS record. Messages read from a store are never mutated;
// writes always create new entries.
type Message struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Address   string    `json:"address" yaml:"address"`
	Body      string    `json:"body" yaml:"body"`
	Timestamp int64     `json:"timestamp" yaml:"timestamp"`
	Direction Direction `json:"direction" yaml:"direction"`
}
