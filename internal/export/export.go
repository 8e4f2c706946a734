// Package export renders batch summaries as CSV and plain-text tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"farewatch/internal/models"
)

// csvHeader is the fixed summary column order.
var csvHeader = []string{
	"event",
	"departure",
	"destination",
	"outbound_date",
	"return_date",
	"stops_filter",
	"lowest_price",
	"currency",
	"sample_airline",
	"json_file",
	"error",
}

// WriteCSV serializes summary rows with the fixed header order.
func WriteCSV(w io.Writer, rows []models.SearchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Event,
			row.Departure,
			row.Destination,
			row.OutboundDate,
			row.ReturnDate,
			row.StopsFilter,
			formatPrice(row.LowestPrice),
			deref(row.Currency),
			deref(row.SampleAirline),
			row.JSONFile,
			row.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the summary to a file path.
func WriteCSVFile(path string, rows []models.SearchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, rows)
}

// SummaryFileName builds the default CSV file name for a run.
func SummaryFileName(now time.Time) string {
	return fmt.Sprintf("summary_%s.csv", now.Format("20060102_150405"))
}

// WriteTable renders the summary rows as an aligned text table.
func WriteTable(w io.Writer, rows []models.SearchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DESTINATION\tLOWEST\tCURRENCY\tAIRLINE\tSTOPS\tERROR")
	for _, row := range rows {
		price := formatPrice(row.LowestPrice)
		if price == "" {
			price = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Destination,
			price,
			orDash(deref(row.Currency)),
			orDash(deref(row.SampleAirline)),
			row.StopsFilter,
			row.Error)
	}
	return tw.Flush()
}

// WriteOptionsTable renders the flattened flight options.
func WriteOptionsTable(w io.Writer, options []models.FlightOption) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DESTINATION\tAIRLINE\tFLIGHT\tPRICE\tDURATION\tDEPARTURE\tARRIVAL\tLAYOVERS")
	for _, o := range options {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			o.Destination,
			orDash(o.Airline),
			o.FlightNumber,
			orDash(formatPrice(o.Price)),
			orDash(formatPrice(o.Duration)),
			orDash(o.Departure),
			orDash(o.Arrival),
			o.Layovers)
	}
	return tw.Flush()
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
