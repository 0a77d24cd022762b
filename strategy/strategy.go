// Package strategy maps named cache strategies to base TTLs.
package strategy

import "time"

// Strategy is a closed set of named base TTLs. Custom carries its own
// duration; the other members resolve to a fixed value via Resolve.
type Strategy struct {
	kind   kind
	custom time.Duration
}

type kind int

const (
	kindDefault kind = iota
	kindRealTime
	kindShortTerm
	kindMediumTerm
	kindLongTerm
	kindCustom
)

var (
	RealTime   = Strategy{kind: kindRealTime}
	ShortTerm  = Strategy{kind: kindShortTerm}
	Default    = Strategy{kind: kindDefault}
	MediumTerm = Strategy{kind: kindMediumTerm}
	LongTerm   = Strategy{kind: kindLongTerm}
)

// Custom returns a strategy resolving to exactly d.
func Custom(d time.Duration) Strategy {
	return Strategy{kind: kindCustom, custom: d}
}

// Resolve returns the base TTL for s. Default and ShortTerm both resolve
// to 5 minutes.
func Resolve(s Strategy) time.Duration {
	switch s.kind {
	case kindRealTime:
		return 10 * time.Second
	case kindShortTerm, kindDefault:
		return 5 * time.Minute
	case kindMediumTerm:
		return time.Hour
	case kindLongTerm:
		return 3 * time.Hour
	case kindCustom:
		return s.custom
	default:
		return 5 * time.Minute
	}
}

// String returns a human-readable name, mainly for logging.
func (s Strategy) String() string {
	switch s.kind {
	case kindRealTime:
		return "RealTime"
	case kindShortTerm:
		return "ShortTerm"
	case kindDefault:
		return "Default"
	case kindMediumTerm:
		return "MediumTerm"
	case kindLongTerm:
		return "LongTerm"
	case kindCustom:
		return "Custom(" + s.custom.String() + ")"
	default:
		return "Unknown"
	}
}
