package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
