package authlog

import (
	"errors"
	"fmt"
	"net"
	"regexp"
)

// DefaultPattern matches sshd failed password lines, for both known and invalid users.
// The address group accepts any four dot-separated digit runs, octets are not range-checked.
// Group "user": targeted username, group "ip": source address.
const DefaultPattern = `Failed password for (?:invalid user )?(?P<user>\S+) from (?P<ip>\d+\.\d+\.\d+\.\d+)`

var ErrInvalidPattern = errors.New("invalid failure pattern")

// FailedLogin is what a matching line yields. It is never retained past the line.
type FailedLogin struct {
	User string
	IP   string
}

// Matcher extracts a FailedLogin from a log line.
type Matcher struct {
	re      *regexp.Regexp
	userIdx int
	ipIdx   int
}

// NewMatcher compiles expr, or DefaultPattern when expr is empty.
// An override must define the named groups "user" and "ip".
func NewMatcher(expr string) (*Matcher, error) {
	if expr == "" {
		expr = DefaultPattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	m := &Matcher{
		re:      re,
		userIdx: re.SubexpIndex("user"),
		ipIdx:   re.SubexpIndex("ip"),
	}
	if m.userIdx < 0 || m.ipIdx < 0 {
		return nil, fmt.Errorf("%w: %q must define the named groups (?P<user>...) and (?P<ip>...)", ErrInvalidPattern, expr)
	}
	return m, nil
}

// MustNewMatcher is like NewMatcher but panics on error.
func MustNewMatcher(expr string) *Matcher {
	m, err := NewMatcher(expr)
	if err != nil {
		panic(err)
	}
	return m
}

// Match searches line anywhere for the failure pattern.
func (m *Matcher) Match(line string) (FailedLogin, bool) {
	sub := m.re.FindStringSubmatch(line)
	if sub == nil {
		return FailedLogin{}, false
	}
	return FailedLogin{User: sub[m.userIdx], IP: sub[m.ipIdx]}, true
}

// String returns the source expression.
func (m *Matcher) String() string {
	return m.re.String()
}

func isValidIP(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}
