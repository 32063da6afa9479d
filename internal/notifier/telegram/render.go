package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

// month names in the genitive case, as used in "11 июня 2021"
var months = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

var hundred = decimal.NewFromInt(100)

// Renderer formats payloads as Telegram HTML messages.
type Renderer struct {
	totalInvestments decimal.Decimal
	rub              *money.Formatter
}

// NewRenderer creates a renderer. totalInvestments is the base for per-ticker portfolio shares.
func NewRenderer(totalInvestments decimal.Decimal) *Renderer {
	cur := money.GetCurrency(money.RUB)
	return &Renderer{
		totalInvestments: totalInvestments,
		rub:              money.NewFormatter(cur.Fraction, ".", " ", "₽", "1 $"),
	}
}

// FormatDate renders t as "d MMMM yyyy" with Russian month names.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d %s %d", t.Day(), months[t.Month()-1], t.Year())
}

// Money renders an amount in roubles rounded to kopecks, e.g. "1 234.56 ₽".
func (r *Renderer) Money(amount decimal.Decimal) string {
	return r.rub.Format(amount.Round(2).Shift(2).IntPart())
}

// InitialData renders the cost basis message.
func (r *Renderer) InitialData(p domain.InitialDataPayload) string {
	blocks := []string{
		fmt.Sprintf("📅 <b>Последнее обновление</b> %s", FormatDate(p.LastUpdated)),
		fmt.Sprintf("💰 <b>Стоимость покупки</b> %s", r.Money(p.TotalBuyPrice)),
	}

	for _, pos := range p.Portfolio.Positions() {
		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("<b>%s:</b>", pos.SecCode),
			fmt.Sprintf("Ср. цена покупки %s ₽", pos.AvgBuyPrice.String()),
			fmt.Sprintf("Количество %d шт.", pos.Quantity),
			fmt.Sprintf("Доля в портфеле %s%%", r.share(pos)),
		}, "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

// LatestInfo renders the valuation message.
func (r *Renderer) LatestInfo(p domain.LatestInfoPayload) string {
	lines := make([]string, 0, len(p.Portfolio))
	for _, c := range p.Portfolio {
		lines = append(lines, fmt.Sprintf("<b>%s:</b> %s ₽ (%s%%)", c.Ticker, c.ClosePrice.String(), signed(c.Change)))
	}

	total := fmt.Sprintf("Итого <b>%s</b>", r.Money(p.Changes.Absolute))
	if rel := p.Changes.Relative; rel != nil {
		sign := ""
		if rel.IsPositive() {
			sign = "+"
		}
		total = fmt.Sprintf("Итого <b>%s%s (%s%%)</b>", sign, r.Money(p.Changes.Absolute), signed(*rel))
	}

	blocks := []string{fmt.Sprintf("📅 Итоги торгов за %s", FormatDate(p.Date))}
	if len(lines) > 0 {
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	blocks = append(blocks, strings.Join([]string{
		fmt.Sprintf("Стоимость портфеля <b>%s</b>", r.Money(p.TotalPrice)),
		total,
	}, "\n"))

	return strings.Join(blocks, "\n\n")
}

// Event renders any orchestrator event, false for an empty event.
func (r *Renderer) Event(e domain.Event) (string, bool) {
	switch {
	case e.Kind == domain.PayloadInitialData && e.InitialData != nil:
		return r.InitialData(*e.InitialData), true
	case e.Kind == domain.PayloadLatestInfo && e.LatestInfo != nil:
		return r.LatestInfo(*e.LatestInfo), true
	default:
		return "", false
	}
}

func (r *Renderer) share(pos domain.Position) string {
	if r.totalInvestments.IsZero() {
		return "0.00"
	}
	return pos.AvgBuyPrice.Mul(decimal.NewFromInt(pos.Quantity)).
		Div(r.totalInvestments).
		Mul(hundred).
		StringFixed(2)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}
