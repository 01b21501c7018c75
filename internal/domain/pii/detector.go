// Package pii detects and masks personally identifiable information in
// action request payloads before they reach policy evaluation, audit
// records, or webhooks.
package pii

import (
	"regexp"
	"strconv"
	"strings"
)

// Entity identifies a class of detected PII.
type Entity string

const (
	EntitySSN        Entity = "SSN"
	EntityCreditCard Entity = "CREDIT_CARD"
	EntityEmail      Entity = "EMAIL"
	EntityPhone      Entity = "PHONE"
	EntityIPAddress  Entity = "IP_ADDRESS"
)

// Mask returns the replacement token for this entity, e.g. "<SSN>".
func (e Entity) Mask() string {
	return "<" + string(e) + ">"
}

// detector pairs a regex with an optional validator that can reject
// false-positive matches (Luhn for card numbers, octet range for IPs).
type detector struct {
	entity   Entity
	re       *regexp.Regexp
	validate func(match string) bool
}

// Detection order matters: SSN (3-2-4 digit groups) before phone (3-3-4),
// and card numbers before phone so a 16-digit pan is not split into
// phone-shaped fragments.
var detectors = []detector{
	{
		entity: EntitySSN,
		re:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		entity:   EntityCreditCard,
		re:       regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
		validate: luhnValid,
	},
	{
		entity: EntityEmail,
		re:     regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	{
		entity: EntityPhone,
		re:     regexp.MustCompile(`\b\+?1?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	},
	{
		entity:   EntityIPAddress,
		re:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		validate: validIPv4,
	},
}

// luhnValid runs the Luhn checksum over the digits of a candidate card number.
// Separators (spaces, dashes) are ignored.
func luhnValid(candidate string) bool {
	var digits []int
	for _, ch := range candidate {
		if ch >= '0' && ch <= '9' {
			digits = append(digits, int(ch-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 16 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// validIPv4 checks that every octet of a dotted-quad candidate is <= 255.
func validIPv4(candidate string) bool {
	parts := strings.Split(candidate, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}
