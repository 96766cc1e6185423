package entity

import (
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders numbers and dates for display.
type Formatter struct {
	printer  *message.Printer
	location *time.Location
	currency string
	clock    func() time.Time
}

// NewFormatter returns a formatter for tag. A nil location means UTC.
func NewFormatter(tag language.Tag, loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{printer: message.NewPrinter(tag), location: loc, currency: "₺"}
}

// DefaultFormatter formats for Turkish users in UTC.
func DefaultFormatter() Formatter {
	return NewFormatter(language.Turkish, time.UTC)
}

func (f Formatter) p() *message.Printer {
	if f.printer == nil {
		return message.NewPrinter(language.Turkish)
	}
	return f.printer
}

// WithClock returns a copy of f using clock as the current time source.
func (f Formatter) WithClock(clock func() time.Time) Formatter {
	f.clock = clock
	return f
}

// Now returns the current time in the formatter's location.
func (f Formatter) Now() time.Time {
	now := time.Now()
	if f.clock != nil {
		now = f.clock()
	}
	if f.location != nil {
		return now.In(f.location)
	}
	return now.UTC()
}

// Amount renders v with two fraction digits.
func (f Formatter) Amount(v float64) string {
	return f.p().Sprint(number.Decimal(v, number.Scale(2)))
}

// Currency renders v as an amount followed by the currency sign.
func (f Formatter) Currency(v float64) string {
	sign := f.currency
	if sign == "" {
		sign = "₺"
	}
	return f.Amount(v) + " " + sign
}

// Quantity renders whole numbers without fraction digits.
func (f Formatter) Quantity(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return f.Amount(v)
}

// Date renders a calendar date, or a dash when unset.
func (f Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	loc := f.location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006")
}
