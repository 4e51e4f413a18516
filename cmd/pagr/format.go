package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/bobmcallan/pagr/internal/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	return table
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optionalMoney(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return money(*v)
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeSummary(w io.Writer, s *models.LoadSummary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, s)
	}

	fmt.Fprintf(w, "Portfolio %s (run %s)\n", s.Portfolio, s.RunID)
	fmt.Fprintf(w, "Rows loaded: %d, rejected: %d\n", s.RowsLoaded, s.RowsRejected)

	if len(s.RowErrors) > 0 {
		fmt.Fprintln(w, "\nRejected rows")
		table := newTable(w, []string{"Row", "Field", "Error"})
		for _, e := range s.RowErrors {
			table.Append([]string{strconv.Itoa(e.Row), orDash(e.Field), e.Message})
		}
		table.Render()
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings")
		table := newTable(w, []string{"Row", "Field", "Warning"})
		for _, e := range s.Warnings {
			table.Append([]string{strconv.Itoa(e.Row), orDash(e.Field), e.Message})
		}
		table.Render()
	}

	if len(s.Incomplete) > 0 {
		fmt.Fprintln(w, "\nIncomplete enrichment")
		table := newTable(w, []string{"Security", "Status"})
		for _, inc := range s.Incomplete {
			table.Append([]string{inc.Key, inc.Message})
		}
		table.Render()
	}

	if len(s.CompanyFailures) > 0 {
		fmt.Fprintln(w, "\nOfficer lookups failed")
		table := newTable(w, []string{"Issuer", "Reason"})
		for _, f := range s.CompanyFailures {
			table.Append([]string{f.Key, f.Reason})
		}
		table.Render()
	}

	if s.Graph != nil && s.Graph.Counts != nil {
		fmt.Fprintf(w, "\nGraph: %d nodes, %d edges (%d edges created, %d replaced, %d positions removed)\n",
			s.Graph.Counts.TotalNodes(), s.Graph.Counts.TotalEdges(),
			s.Graph.EdgesCreated, s.Graph.EdgesRemoved, s.Graph.PositionsDeleted)
	}
	fmt.Fprintf(w, "Elapsed: %s\n", s.Duration.Round(time.Millisecond))
	return nil
}

func writeExposure(w io.Writer, dim models.Dimension, rows []models.ExposureRow, asJSON bool) error {
	if asJSON {
		return writeJSON(w, rows)
	}

	table := newTable(w, []string{string(dim), "Value", "Weight", "Positions", "Unpriced"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	var total float64
	var positions, unpriced int
	for _, r := range rows {
		label := r.GroupLabel
		if label != r.GroupKey {
			label = fmt.Sprintf("%s (%s)", r.GroupLabel, r.GroupKey)
		}
		table.Append([]string{label, money(r.TotalValue), percent(r.TotalWeight), strconv.Itoa(r.PositionCount), strconv.Itoa(r.UnpricedCount)})
		total += r.TotalValue
		positions += r.PositionCount
		unpriced += r.UnpricedCount
	}
	table.SetFooter([]string{"Total", money(total), "", strconv.Itoa(positions), strconv.Itoa(unpriced)})
	table.Render()
	return nil
}

func writePositions(w io.Writer, views []models.PositionView, asJSON bool) error {
	if asJSON {
		return writeJSON(w, views)
	}

	table := newTable(w, []string{"Portfolio", "Row", "Security", "Name", "Class", "Quantity", "Book Value", "Market Value", "Weight", "Sector", "Issuer", "Country"})
	for _, v := range views {
		table.Append([]string{
			v.Portfolio,
			strconv.Itoa(v.Row),
			v.SecurityKey,
			orDash(v.SecurityName),
			string(v.Class),
			strconv.FormatFloat(v.Quantity, 'f', -1, 64),
			money(v.BookValue),
			optionalMoney(v.MarketValue),
			percent(v.Weight),
			orDash(v.Sector),
			orDash(v.Issuer),
			orDash(v.OperationsCountry),
		})
	}
	table.Render()
	return nil
}

func writeExecutives(w io.Writer, rows []models.ExecutiveRow, asJSON bool) error {
	if asJSON {
		return writeJSON(w, rows)
	}

	table := newTable(w, []string{"Company", "Executive", "Title", "Value", "Positions"})
	for _, r := range rows {
		table.Append([]string{
			fmt.Sprintf("%s (%s)", orDash(r.Company), r.IssuerID),
			r.Executive,
			orDash(r.Title),
			money(r.TotalValue),
			strconv.Itoa(r.PositionCount),
		})
	}
	table.Render()
	return nil
}

func writeStress(w io.Writer, rows []models.StressRow, asJSON bool) error {
	if asJSON {
		return writeJSON(w, rows)
	}

	table := newTable(w, []string{"Company", "Sector", "Country", "At Risk", "Weight", "Positions"})
	var total, weight float64
	for _, r := range rows {
		table.Append([]string{
			fmt.Sprintf("%s (%s)", orDash(r.Company), r.IssuerID),
			r.Sector,
			r.Country,
			money(r.ExposureAtRisk),
			percent(r.Weight),
			strconv.Itoa(r.PositionCount),
		})
		total += r.ExposureAtRisk
		weight += r.Weight
	}
	table.SetFooter([]string{"Total", "", "", money(total), percent(weight), ""})
	table.Render()
	return nil
}

func writePortfolios(w io.Writer, list []models.PortfolioSummary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, list)
	}

	table := newTable(w, []string{"Portfolio", "Positions", "Book Value", "Created", "Updated"})
	for _, p := range list {
		table.Append([]string{
			p.Name,
			strconv.Itoa(p.PositionCount),
			money(p.TotalBookValue),
			p.CreatedAt.Format("2006-01-02 15:04"),
			p.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}
