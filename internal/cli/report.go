package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/Veraticus/billfinder/internal/storage"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const none = "-"

// RenderBills writes the bills as a table.
func RenderBills(w io.Writer, bills []model.ReconciledBill) error {
	if len(bills) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No bills found."))
		return err
	}

	rows := make([][]string, 0, len(bills))
	for _, b := range bills {
		rows = append(rows, []string{
			b.MerchantName,
			FormatAmount(b.Amount),
			orNone(string(b.Frequency)),
			formatDate(b.DueDate),
			orNone(string(b.Category)),
			strconv.FormatFloat(b.Confidence, 'f', 0, 64) + "%",
			formatSourceTypes(b.SourceTypes),
		})
	}

	t := newTable("Merchant", "Amount", "Frequency", "Due", "Category", "Confidence", "Sources").
		Rows(rows...)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// FormatSummary renders the run statistics and any non-fatal errors.
func FormatSummary(result *model.DiscoveryResult) string {
	s := result.Stats

	var b strings.Builder
	fmt.Fprintf(&b, "  • Bills found: %d\n", s.TotalBillsFound)
	fmt.Fprintf(&b, "  • From email: %d\n", s.EmailBillsFound)
	fmt.Fprintf(&b, "  • From bank: %d\n", s.BankBillsFound)
	fmt.Fprintf(&b, "  • Subscriptions: %d\n", s.SubscriptionsFound)
	fmt.Fprintf(&b, "  • Duplicates merged: %d\n", s.DuplicatesFound)
	fmt.Fprintf(&b, "  • Potential savings: %s", FormatAmount(s.PotentialSavings))
	if !result.FinishedAt.IsZero() && !result.StartedAt.IsZero() {
		fmt.Fprintf(&b, "\n  • Time taken: %s", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}

	if result.Canceled {
		b.WriteString("\n\n" + FormatWarning("Run was canceled; results are partial."))
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "\n\n%s", FormatWarning(fmt.Sprintf("%d problem(s):", len(result.Errors))))
		for _, e := range result.Errors {
			b.WriteString("\n  " + SubtleStyle.Render(e))
		}
	}

	return RenderBox(BillIcon+" Discovery Complete", b.String())
}

// RenderRuns writes stored run summaries as a table.
func RenderRuns(w io.Writer, runs []service.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No saved runs. Use 'billfinder discover --save' to keep one."))
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := SuccessIcon
		if r.Canceled {
			status = "canceled"
		}
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.Stats.TotalBillsFound),
			strconv.Itoa(r.Stats.DuplicatesFound),
			strconv.Itoa(r.ErrorCount),
			status,
		})
	}

	t := newTable("Run", "Started", "Bills", "Duplicates", "Errors", "Status").Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderSightings writes the stored history of one bill, newest first.
func RenderSightings(w io.Writer, key string, sightings []storage.BillSighting) error {
	if len(sightings) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo(fmt.Sprintf("No saved run contains %s.", key)))
		return err
	}

	rows := make([][]string, 0, len(sightings))
	for _, s := range sightings {
		rows = append(rows, []string{
			s.RunID,
			s.RunStartedAt.Local().Format("2006-01-02 15:04"),
			FormatAmount(s.Amount),
			strconv.FormatFloat(s.Confidence, 'f', 0, 64) + "%",
		})
	}

	t := newTable("Run", "Started", "Amount", "Confidence").Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderAccounts lists the accounts behind one bank token.
func RenderAccounts(w io.Writer, label string, accounts []model.Account) error {
	var b strings.Builder
	b.WriteString(TitleStyle.UnsetMargins().Render(LinkIcon + " " + label))
	if len(accounts) == 0 {
		b.WriteString("\n  " + SubtleStyle.Render("no accounts"))
	}
	for _, a := range accounts {
		fmt.Fprintf(&b, "\n  %s %s", a.Name, SubtleStyle.Render(fmt.Sprintf("(%s, %s)", orNone(a.Type), a.ID)))
	}
	_, err := fmt.Fprintln(w, b.String())
	return err
}

// FormatAmount renders a currency amount.
func FormatAmount(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#333"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
}

func formatDate(t *time.Time) string {
	if t == nil {
		return none
	}
	return t.Format("2006-01-02")
}

func formatSourceTypes(types []model.SourceType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, "+")
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}
