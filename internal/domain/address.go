package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Address identifies a client by its on-chain account: a lowercase
// 0x-prefixed 40-hex-digit string. Values produced by ParseAddress are
// always canonical, so addresses compare with ==.
type Address string

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseAddress validates s and returns it canonicalized to lowercase.
func ParseAddress(s string) (Address, error) {
	if !addressPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(strings.ToLower(s)), nil
}

// IsValidAddress reports whether s matches the address pattern.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

func (a Address) String() string { return string(a) }
