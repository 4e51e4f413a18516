// Package models defines data structures for PAGR
package models

import "strings"

// IdentifierType names the kind of security identifier
type IdentifierType string

const (
	IDTypeCUSIP  IdentifierType = "cusip"
	IDTypeISIN   IdentifierType = "isin"
	IDTypeTicker IdentifierType = "ticker"
)

// SecurityClass tags a security as equity, fixed income or unknown
type SecurityClass string

const (
	ClassEquity      SecurityClass = "equity"
	ClassFixedIncome SecurityClass = "fixed_income"
	ClassUnknown     SecurityClass = "unknown"
)

// Identifier is the canonical identity of a security: the chosen identifier
// and the class derived alongside it.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
	Class SecurityClass  `json:"class"`
}

// Key returns the security identity key, "<type>:<value>".
func (i Identifier) Key() string {
	if i.Value == "" {
		return ""
	}
	return string(i.Type) + ":" + i.Value
}

// IsZero reports whether no identifier was resolved
func (i Identifier) IsZero() bool {
	return i.Value == ""
}

func (i Identifier) String() string {
	return i.Key()
}

// ParseIdentifierKey splits a "<type>:<value>" key back into an Identifier.
// The class is not part of the key and is left empty.
func ParseIdentifierKey(key string) (Identifier, bool) {
	t, v, ok := strings.Cut(key, ":")
	if !ok || v == "" {
		return Identifier{}, false
	}
	switch IdentifierType(t) {
	case IDTypeCUSIP, IDTypeISIN, IDTypeTicker:
		return Identifier{Type: IdentifierType(t), Value: v}, true
	}
	return Identifier{}, false
}

// placeholders are identifier tokens treated as absent
var placeholders = map[string]bool{
	"":     true,
	"N/A":  true,
	"NA":   true,
	"NULL": true,
}

// IsPlaceholder reports whether s is blank or a placeholder token such as
// "N/A" or "null" (case-insensitive).
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToUpper(strings.TrimSpace(s))]
}

// CleanIdentifier trims and upper-cases an identifier, returning "" for
// placeholders.
func CleanIdentifier(s string) string {
	if IsPlaceholder(s) {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
