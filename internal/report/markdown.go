// Package report renders a one-shot portfolio valuation for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const dateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// Report is the cost basis of the portfolio and, when the feed had a session, its valuation.
type Report struct {
	Initial domain.InitialDataPayload
	Latest  *domain.LatestInfoPayload
}

// Builder formats reports as markdown.
type Builder struct {
	totalInvestments decimal.Decimal
	rub              *money.Formatter
}

// NewBuilder creates a builder. totalInvestments is the base for per-ticker shares, zero hides the column.
func NewBuilder(totalInvestments decimal.Decimal) *Builder {
	return &Builder{
		totalInvestments: totalInvestments,
		rub:              money.NewFormatter(money.GetCurrency(money.RUB).Fraction, ".", " ", "₽", "1 $"),
	}
}

func (b *Builder) money(amount decimal.Decimal) string {
	return b.rub.Format(amount.Round(2).Shift(2).IntPart())
}

// Markdown renders the report.
func (b *Builder) Markdown(r Report) string {
	var sb strings.Builder

	sb.WriteString("# Portfolio\n\n")
	if !r.Initial.LastUpdated.IsZero() {
		fmt.Fprintf(&sb, "Last trade **%s**  \n", r.Initial.LastUpdated.Format(dateLayout))
	}
	fmt.Fprintf(&sb, "Cost basis **%s**\n\n", b.money(r.Initial.TotalBuyPrice))

	changes := make(map[string]domain.TickerChange)
	if r.Latest != nil {
		for _, c := range r.Latest.Portfolio {
			changes[c.Ticker] = c
		}
	}

	header := []string{"Ticker", "Quantity", "Avg buy price", "Close", "Change"}
	align := []string{"---", "---:", "---:", "---:", "---:"}
	withShare := !b.totalInvestments.IsZero()
	if withShare {
		header = append(header, "Share")
		align = append(align, "---:")
	}
	writeRow(&sb, header)
	writeRow(&sb, align)

	if r.Initial.Portfolio != nil {
		for _, pos := range r.Initial.Portfolio.Positions() {
			closePrice, change := "-", "-"
			if c, ok := changes[pos.SecCode]; ok {
				closePrice = c.ClosePrice.String()
				change = signed(c.Change) + "%"
			}
			row := []string{pos.SecCode, fmt.Sprint(pos.Quantity), pos.AvgBuyPrice.String(), closePrice, change}
			if withShare {
				row = append(row, b.share(pos)+"%")
			}
			writeRow(&sb, row)
		}
	}

	if r.Latest == nil {
		sb.WriteString("\n_No trading session data available._\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "\n## Session %s\n\n", r.Latest.Date.Format(dateLayout))
	fmt.Fprintf(&sb, "Value **%s**  \n", b.money(r.Latest.TotalPrice))

	diff := r.Latest.Changes
	total := b.money(diff.Absolute)
	if diff.Absolute.IsPositive() {
		total = "+" + total
	}
	if diff.Relative != nil {
		total += " (" + signed(*diff.Relative) + "%)"
	}
	fmt.Fprintf(&sb, "Result **%s**\n", total)

	return sb.String()
}

func (b *Builder) share(pos domain.Position) string {
	return pos.AvgBuyPrice.Mul(decimal.NewFromInt(pos.Quantity)).
		Div(b.totalInvestments).
		Mul(hundred).
		StringFixed(2)
}

// Render styles markdown for the terminal. An empty style picks one from the terminal background.
func Render(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", errors.Wrap(err, "create markdown renderer")
	}
	out, err := r.Render(md)
	if err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return out, nil
}

func writeRow(sb *strings.Builder, cells []string) {
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}
