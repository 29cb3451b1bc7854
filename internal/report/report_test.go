package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/authlog"
)

func analyze(t *testing.T, input string, threshold int) *authlog.Report {
	t.Helper()
	rep, err := authlog.NewAnalyzer(nil, threshold, nil).Analyze(strings.NewReader(input))
	require.NoError(t, err)
	return rep
}

func failedLines(user, ip string, n int) string {
	return strings.Repeat(fmt.Sprintf("sshd[42]: Failed password for %s from %s port 22 ssh2\n", user, ip), n)
}

func TestRank(t *testing.T) {
	got := Rank(authlog.FrequencyTable{"b": 2, "a": 2, "c": 7, "d": 1})
	want := []Entry{{"c", 7}, {"a", 2}, {"b", 2}, {"d", 1}}
	assert.Equal(t, want, got)

	assert.Empty(t, Rank(authlog.FrequencyTable{}))
}

func TestTop(t *testing.T) {
	entries := []Entry{{"a", 3}, {"b", 2}, {"c", 1}}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"fewer than available", 2, 2},
		{"more than available", 10, 3},
		{"zero keeps all", 0, 3},
		{"negative keeps all", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Top(entries, tt.n), tt.want)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	input := failedLines("invalid user admin", "203.0.113.7", 6) +
		failedLines("root", "198.51.100.23", 3) +
		failedLines("invalid user oracle", "203.0.113.7", 1) +
		"Accepted password for bob from 10.0.0.1 port 22 ssh2\n"
	rep := analyze(t, input, 5)

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, rep, DefaultTop))

	want := "Lines analyzed: 11\n" +
		"Top IPs by failed attempts:\n" +
		"  203.0.113.7: 7 [SUSPICIOUS]\n" +
		"  198.51.100.23: 3\n" +
		"\n" +
		"Top targeted usernames:\n" +
		"  admin: 6\n" +
		"  root: 3\n" +
		"  oracle: 1\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, analyze(t, "", 5), DefaultTop))

	assert.Equal(t, "Lines analyzed: 0\nTop IPs by failed attempts:\n\nTop targeted usernames:\n", buf.String())
}

func TestPrintSummaryTopLimit(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 12; i++ {
		sb.WriteString(failedLines(fmt.Sprintf("user%02d", i), fmt.Sprintf("10.0.0.%d", i), i))
	}
	rep := analyze(t, sb.String(), 5)

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, rep, DefaultTop))
	out := buf.String()

	assert.Equal(t, 8, strings.Count(out, "[SUSPICIOUS]"))
	assert.Contains(t, out, "  10.0.0.12: 12 [SUSPICIOUS]\n")
	assert.Contains(t, out, "  10.0.0.3: 3\n")
	assert.NotContains(t, out, "10.0.0.2:")
	assert.NotContains(t, out, "user02")
	assert.Contains(t, out, "  user03: 3\n")
}

func TestPrintSummaryWriteError(t *testing.T) {
	err := PrintSummary(failingWriter{}, analyze(t, failedLines("root", "10.0.0.1", 1), 5), DefaultTop)
	assert.Error(t, err)
}

func TestPrintCSVConfirmation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintCSVConfirmation(&buf, "report.csv"))
	assert.Equal(t, "\nCSV report written to report.csv\n", buf.String())
}

func TestWriteCSVTo(t *testing.T) {
	input := failedLines("invalid user admin", "203.0.113.7", 5) +
		failedLines("root", "198.51.100.23", 2)
	rep := analyze(t, input, 5)

	var buf bytes.Buffer
	require.NoError(t, WriteCSVTo(&buf, rep))

	want := "Type,Value,Count\r\n" +
		"IP,203.0.113.7,5\r\n" +
		"IP,198.51.100.23,2\r\n" +
		"User,admin,5\r\n" +
		"User,root,2\r\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 15; i++ {
		sb.WriteString(failedLines(fmt.Sprintf("u,ser\"%d", i%4), fmt.Sprintf("192.0.2.%d", i), i))
	}
	rep := analyze(t, sb.String(), 5)
	path := filepath.Join(t.TempDir(), "report.csv")

	require.NoError(t, WriteCSV(path, rep))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"Type", "Value", "Count"}, rows[0])

	ips := authlog.FrequencyTable{}
	users := authlog.FrequencyTable{}
	seenUser := false
	for _, row := range rows[1:] {
		require.Len(t, row, 3)
		count, err := strconv.Atoi(row[2])
		require.NoError(t, err)
		switch row[0] {
		case TypeIP:
			assert.False(t, seenUser, "IP rows must come before User rows")
			ips[row[1]] = count
		case TypeUser:
			seenUser = true
			users[row[1]] = count
		default:
			t.Fatalf("unexpected row type %q", row[0])
		}
	}
	assert.Equal(t, rep.IPCounts, ips)
	assert.Equal(t, rep.UserCounts, users)
	assert.Len(t, rows, 1+len(rep.IPCounts)+len(rep.UserCounts))
}

func TestWriteCSVReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0644))

	require.NoError(t, WriteCSV(path, analyze(t, "", 5)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Type,Value,Count\r\n", string(data))
}

func TestWriteCSVMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "report.csv")

	err := WriteCSV(path, analyze(t, failedLines("root", "10.0.0.1", 1), 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputWrite)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestWriteCSVTargetIsDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.csv")
	require.NoError(t, os.Mkdir(target, 0755))

	err := WriteCSV(target, analyze(t, failedLines("root", "10.0.0.1", 1), 5))
	assert.ErrorIs(t, err, ErrOutputWrite)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".report.csv.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}
