// Package report renders an authlog.Report as a console summary and as a CSV file.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/authlog"
)

const (
	DefaultTop = 10

	TypeIP   = "IP"
	TypeUser = "User"
)

var ErrOutputWrite = errors.New("report write failed")

// Entry is one row of a ranked frequency table.
type Entry struct {
	Value string
	Count int
}

// Rank returns every entry of table, highest count first.
// Equal counts are ordered by ascending value so output does not depend on map order.
func Rank(table authlog.FrequencyTable) []Entry {
	entries := make([]Entry, 0, len(table))
	for v, c := range table {
		entries = append(entries, Entry{Value: v, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Value < entries[j].Value
	})
	return entries
}

// Top returns at most n leading entries; n <= 0 keeps them all.
func Top(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

// PrintSummary writes the console summary of rep, showing top rows per table.
func PrintSummary(w io.Writer, rep *authlog.Report, top int) error {
	ew := &errWriter{w: w}
	ew.printf("Lines analyzed: %d\n", rep.Lines)
	ew.printf("Top IPs by failed attempts:\n")
	for _, e := range Top(Rank(rep.IPCounts), top) {
		note := ""
		if rep.IsSuspicious(e.Value) {
			note = " [SUSPICIOUS]"
		}
		ew.printf("  %s: %d%s\n", e.Value, e.Count, note)
	}
	ew.printf("\nTop targeted usernames:\n")
	for _, e := range Top(Rank(rep.UserCounts), top) {
		ew.printf("  %s: %d\n", e.Value, e.Count)
	}
	return ew.err
}

// PrintCSVConfirmation tells the user where the CSV report went.
func PrintCSVConfirmation(w io.Writer, path string) error {
	_, err := fmt.Fprintf(w, "\nCSV report written to %s\n", path)
	return err
}

// WriteCSVTo writes the Type,Value,Count table: all addresses, then all usernames.
func WriteCSVTo(w io.Writer, rep *authlog.Report) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write([]string{"Type", "Value", "Count"}); err != nil {
		return err
	}
	for _, e := range Rank(rep.IPCounts) {
		if err := cw.Write([]string{TypeIP, e.Value, strconv.Itoa(e.Count)}); err != nil {
			return err
		}
	}
	for _, e := range Rank(rep.UserCounts) {
		if err := cw.Write([]string{TypeUser, e.Value, strconv.Itoa(e.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV writes the CSV report to path. The file is built next to its
// destination and renamed into place, so path either holds the whole report or
// is left untouched.
func WriteCSV(path string, rep *authlog.Report) error {
	// created 0666 so the process umask decides the final mode
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := WriteCSVTo(tmp, rep); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputWrite, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	committed = true
	return nil
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
