package domain

import (
	"fmt"
	"strings"
)

// Significance words used in event keys.
const (
	SignificanceWarning = "WARNING"
	SignificanceWatch   = "WATCH"
)

// vtecStartSentinel is the start time NWS sends for hazards already in effect.
const vtecStartSentinel = "000000T0000Z"

// VTEC is a parsed P-VTEC string.
type VTEC struct {
	Raw          string
	Class        string
	MessageType  string
	Office       string
	Phenomena    string
	Significance string
	ETN          string
	Start        string
	End          string
}

// ParseVTEC parses a string like "/O.NEW.KSBY.TO.W.0015.251212T2203Z-251212T2300Z/".
// Strings with too few fields, or whose significance is neither W nor A, are
// rejected with ErrValidation.
func ParseVTEC(raw string) (VTEC, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	parts := strings.Split(trimmed, ".")
	if len(parts) < 7 {
		return VTEC{}, Validationf("vtec %q: expected 7 fields, got %d", raw, len(parts))
	}

	v := VTEC{
		Raw:         raw,
		Class:       parts[0],
		MessageType: strings.ToUpper(parts[1]),
		Office:      strings.ToUpper(parts[2]),
		Phenomena:   strings.ToUpper(parts[3]),
		ETN:         parts[5],
	}
	switch strings.ToUpper(parts[4]) {
	case "W":
		v.Significance = SignificanceWarning
	case "A":
		v.Significance = SignificanceWatch
	default:
		return VTEC{}, Validationf("vtec %q: significance %q is not a warning or watch", raw, parts[4])
	}

	if v.Office == "" || v.Phenomena == "" || v.ETN == "" {
		return VTEC{}, Validationf("vtec %q: missing office, phenomena or tracking number", raw)
	}

	start, end, _ := strings.Cut(parts[6], "-")
	v.Start, v.End = start, end
	return v, nil
}

// MessageTypeOf returns the action field of a VTEC string without validating
// the rest of it, or "" when the string has no action field.
func MessageTypeOf(raw string) string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(raw), "/"), ".")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToUpper(parts[1])
}

// IsWarning reports whether the VTEC significance is W.
func (v VTEC) IsWarning() bool { return v.Significance == SignificanceWarning }

// IsWatch reports whether the VTEC significance is A.
func (v VTEC) IsWatch() bool { return v.Significance == SignificanceWatch }

// Year returns the two-digit year used in the key: from the start time, else
// the end time, else the current UTC year.
func (v VTEC) Year() string {
	if yy, ok := vtecYear(v.Start); ok {
		return yy
	}
	if yy, ok := vtecYear(v.End); ok {
		return yy
	}
	return fmt.Sprintf("%02d", now().UTC().Year()%100)
}

// Key returns office-phenomena-significance-etn-year.
func (v VTEC) Key() string {
	return strings.Join([]string{v.Office, v.Phenomena, v.Significance, v.ETN, v.Year()}, "-")
}

func vtecYear(ts string) (string, bool) {
	if len(ts) < 2 || strings.HasPrefix(ts, vtecStartSentinel[:6]) {
		return "", false
	}
	yy := ts[:2]
	if yy[0] < '0' || yy[0] > '9' || yy[1] < '0' || yy[1] > '9' {
		return "", false
	}
	return yy, true
}
