/*
Package authlog scans sshd authentication logs for failed password attempts
and counts them per source address and per targeted username.
*/
package authlog

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
)

const DefaultThreshold = 5

// FrequencyTable maps a key (address or username) to its occurrence count.
type FrequencyTable map[string]int

// Total returns the sum of all counts.
func (t FrequencyTable) Total() int {
	sum := 0
	for _, c := range t {
		sum += c
	}
	return sum
}

// Report is the result of one full scan. It is not modified after Analyze returns it.
type Report struct {
	Lines         int            // every line read, matched or not
	Matched       int            // lines matching the failure pattern
	Threshold     int            // minimum count for an address to be suspicious
	IPCounts      FrequencyTable // failed attempts per source address
	UserCounts    FrequencyTable // failed attempts per targeted username
	SuspiciousIPs []string       // addresses with IPCounts >= Threshold, highest count first
}

// IsSuspicious reports whether ip reached the threshold.
func (r *Report) IsSuspicious(ip string) bool {
	return r.IPCounts[ip] > 0 && r.IPCounts[ip] >= r.Threshold
}

// Analyzer runs the extraction and counting pass.
type Analyzer struct {
	matcher   *Matcher
	threshold int
	logger    *slog.Logger
}

// NewAnalyzer returns an Analyzer using m (DefaultPattern when nil).
// A nil logger discards diagnostics.
func NewAnalyzer(m *Matcher, threshold int, logger *slog.Logger) *Analyzer {
	if m == nil {
		m = MustNewMatcher("")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{matcher: m, threshold: threshold, logger: logger}
}

// AnalyzeFile opens path (see Open) and scans it.
func (a *Analyzer) AnalyzeFile(path string) (*Report, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	a.logger.Info("scanning auth log", "path", path, "threshold", a.threshold)
	rep, err := a.Analyze(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInputUnavailable, path, err)
	}
	a.logger.Info("scan finished",
		"path", path,
		"lines", rep.Lines,
		"failed_logins", rep.Matched,
		"addresses", len(rep.IPCounts),
		"usernames", len(rep.UserCounts),
		"suspicious", len(rep.SuspiciousIPs))
	return rep, nil
}

// Analyze reads r line by line and builds a Report.
func (a *Analyzer) Analyze(r io.Reader) (*Report, error) {
	rep := &Report{
		Threshold:  a.threshold,
		IPCounts:   make(FrequencyTable),
		UserCounts: make(FrequencyTable),
	}

	lines := newLineReader(r)
	for lines.Next() {
		rep.Lines++
		ev, ok := a.matcher.Match(decodeLine(lines.Bytes()))
		if !ok {
			continue
		}
		rep.Matched++
		rep.IPCounts[ev.IP]++
		rep.UserCounts[ev.User]++
		if rep.IPCounts[ev.IP] == 1 && !isValidIP(ev.IP) {
			a.logger.Debug("counting address that is not a valid IP", "address", ev.IP, "line", rep.Lines)
		}
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", rep.Lines+1, err)
	}

	rep.SuspiciousIPs = suspicious(rep.IPCounts, a.threshold)
	return rep, nil
}

// suspicious returns the addresses whose count reached threshold,
// sorted by descending count then ascending address.
func suspicious(counts FrequencyTable, threshold int) []string {
	ips := []string{}
	for ip, c := range counts {
		if c >= threshold {
			ips = append(ips, ip)
		}
	}
	sort.Slice(ips, func(i, j int) bool {
		if counts[ips[i]] != counts[ips[j]] {
			return counts[ips[i]] > counts[ips[j]]
		}
		return ips[i] < ips[j]
	})
	return ips
}
