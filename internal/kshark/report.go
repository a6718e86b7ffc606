package kshark

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

// CheckStatus represents the result of a diagnostic check.
type CheckStatus string

const (
	OK   CheckStatus = "OK"
	WARN CheckStatus = "WARN"
	FAIL CheckStatus = "FAIL"
	SKIP CheckStatus = "SKIP"
)

// Layer represents the network/protocol layer being checked.
type Layer string

const (
	L3  Layer = "L3-Network"
	L4  Layer = "L4-TCP"
	L56 Layer = "L5-6-TLS"
	L7  Layer = "L7-Kafka"
)

// Row is a single diagnostic check result.
type Row struct {
	Target string      `json:"target"`
	Layer  Layer       `json:"layer"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
	Hint   string      `json:"hint,omitempty"`
}

// Report collects all diagnostic results.
type Report struct {
	Rows       []Row     `json:"rows"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	HasFailed  bool      `json:"has_failed"`
}

func (r *Report) add(row Row) {
	if row.Status == FAIL {
		r.HasFailed = true
	}
	r.Rows = append(r.Rows, row)
}

// Count returns how many rows have status.
func (r *Report) Count(status CheckStatus) int {
	n := 0
	for _, row := range r.Rows {
		if row.Status == status {
			n++
		}
	}
	return n
}

// Print writes the report as a colored table.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\nKafka relay check (%s)\n", r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond))
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, row := range r.Rows {
		line := fmt.Sprintf("%-5s %-28s %-11s %s", row.Status, truncate(row.Target, 28), row.Layer, row.Detail)
		switch row.Status {
		case OK:
			fmt.Fprintln(w, color.GreenString(line))
		case WARN:
			fmt.Fprintln(w, color.YellowString(line))
		case FAIL:
			fmt.Fprintln(w, color.RedString(line))
		default:
			fmt.Fprintln(w, line)
		}
		if row.Hint != "" && row.Status != OK {
			fmt.Fprintf(w, "      -> %s\n", row.Hint)
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "OK:%d  WARN:%d  FAIL:%d  SKIP:%d\n", r.Count(OK), r.Count(WARN), r.Count(FAIL), r.Count(SKIP))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
