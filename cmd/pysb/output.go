package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// listing is what list commands hand to render: the structured value for
// json and yaml, and its rows for the table view.
type listing struct {
	value  any
	header []string
	rows   [][]string
	// empty is printed instead of an empty table.
	empty string
}

func (a *app) render(l listing) error {
	switch a.output {
	case outputJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(l.value)
	case outputYAML:
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(l.value); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(l.rows) == 0 {
		fmt.Fprintln(a.stdout, mutedStyle.Render(l.empty))
		return nil
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(l.header...).
		Rows(l.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(a.stdout, t.String())
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
