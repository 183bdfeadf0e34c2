package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExportFormat selects an export encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatTXT  ExportFormat = "txt"
)

// ParseFormat maps a request parameter onto an export format.
func ParseFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatTXT:
		return FormatTXT, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Export writes the stored results in the given format.
func (s *Store) Export(w io.Writer, format ExportFormat, sortBy string, ascending bool) error {
	switch format {
	case FormatCSV:
		return s.exportCSV(w, sortBy, ascending)
	case FormatJSON:
		return s.exportJSON(w, sortBy, ascending)
	case FormatTXT:
		return s.exportTXT(w, sortBy, ascending)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func (s *Store) exportCSV(w io.Writer, sortBy string, ascending bool) error {
	results := s.Sorted(sortBy, ascending)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"ID", "Timestamp", "Method", "Server", "Download(Mbps)", "Upload(Mbps)", "Ping(ms)", "Jitter(ms)", "Synthesized"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		record := []string{
			r.ID,
			r.Timestamp.Format(time.RFC3339),
			r.Method,
			r.Server,
			fmt.Sprintf("%.2f", r.Download),
			fmt.Sprintf("%.2f", r.Upload),
			formatMs(r.Ping),
			formatMs(r.Jitter),
			fmt.Sprintf("%t", r.UploadSynthesized),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

func (s *Store) exportJSON(w io.Writer, sortBy string, ascending bool) error {
	results := s.Sorted(sortBy, ascending)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	exportData := map[string]interface{}{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"count":        len(results),
		"statistics":   s.Stats(),
		"results":      results,
	}
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func (s *Store) exportTXT(w io.Writer, sortBy string, ascending bool) error {
	results := s.Sorted(sortBy, ascending)
	stats := s.Stats()

	fmt.Fprintf(w, "Casaway Speed Test History\n")
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Runs: %d (succeeded %d, failed %d)\n", stats.Attempts, stats.Succeeded, stats.Failed)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "%-25s %-10s %-14s %-14s %-10s %-20s\n",
		"Timestamp", "Method", "Down(Mbps)", "Up(Mbps)", "Ping(ms)", "Server")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 95))

	for _, r := range results {
		fmt.Fprintf(w, "%-25s %-10s %-14.2f %-14.2f %-10s %-20s\n",
			r.Timestamp.Format(time.RFC3339),
			r.Method,
			r.Download,
			r.Upload,
			formatMs(r.Ping),
			r.Server)
	}
	return nil
}

func formatMs(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
