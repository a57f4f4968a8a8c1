package models

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/kjannette/hrp-allocator/internal/date"
)

// PricePoint is one adjusted close, identified by (Date, Ticker).
type PricePoint struct {
	Date   date.Date `json:"date"`
	Ticker string    `json:"ticker"`
	Price  float64   `json:"price"`
}

// Validate reports whether the point can be stored.
func (p PricePoint) Validate() error {
	if p.Date.IsZero() {
		return fmt.Errorf("price point %s: missing date", p.Ticker)
	}
	if p.Ticker == "" {
		return fmt.Errorf("price point %s: missing ticker", p.Date)
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
		return fmt.Errorf("price point %s/%s: price %v must be finite and positive", p.Date, p.Ticker, p.Price)
	}
	return nil
}

// Series is a single column of a matrix, dates ascending.
type Series struct {
	Dates  []date.Date `json:"dates"`
	Values []float64   `json:"values"`
}

func (s Series) Len() int { return len(s.Dates) }

// PriceMatrix is the wide view of the price store: one row per date
// (ascending), one column per ticker (sorted). Missing cells are NaN.
type PriceMatrix struct {
	Dates   []date.Date
	Tickers []string
	Values  [][]float64
}

// NewPriceMatrix pivots points into wide form. When a (date, ticker) pair
// appears more than once the first occurrence wins.
func NewPriceMatrix(points []PricePoint) PriceMatrix {
	if len(points) == 0 {
		return PriceMatrix{}
	}

	dayIdx := map[date.Date]int{}
	tickIdx := map[string]int{}
	var m PriceMatrix
	for _, p := range points {
		if _, ok := dayIdx[p.Date]; !ok {
			dayIdx[p.Date] = 0
			m.Dates = append(m.Dates, p.Date)
		}
		if _, ok := tickIdx[p.Ticker]; !ok {
			tickIdx[p.Ticker] = 0
			m.Tickers = append(m.Tickers, p.Ticker)
		}
	}
	sort.Slice(m.Dates, func(i, j int) bool { return m.Dates[i].Before(m.Dates[j]) })
	sort.Strings(m.Tickers)
	for i, d := range m.Dates {
		dayIdx[d] = i
	}
	for j, t := range m.Tickers {
		tickIdx[t] = j
	}

	m.Values = make([][]float64, len(m.Dates))
	for i := range m.Values {
		m.Values[i] = nanRow(len(m.Tickers))
	}
	for _, p := range points {
		i, j := dayIdx[p.Date], tickIdx[p.Ticker]
		if math.IsNaN(m.Values[i][j]) {
			m.Values[i][j] = p.Price
		}
	}
	return m
}

// Empty reports whether the matrix has no rows or no columns.
func (m PriceMatrix) Empty() bool { return len(m.Dates) == 0 || len(m.Tickers) == 0 }

// Has reports whether ticker is a column of m.
func (m PriceMatrix) Has(ticker string) bool { return slices.Contains(m.Tickers, ticker) }

// Columns returns a matrix restricted to tickers, in the given order.
// Tickers that are not in m come back as all-missing columns.
func (m PriceMatrix) Columns(tickers ...string) PriceMatrix {
	out := PriceMatrix{
		Dates:   slices.Clone(m.Dates),
		Tickers: slices.Clone(tickers),
		Values:  make([][]float64, len(m.Dates)),
	}
	src := make([]int, len(tickers))
	for j, t := range tickers {
		src[j] = slices.Index(m.Tickers, t)
	}
	for i, row := range m.Values {
		r := nanRow(len(tickers))
		for j, k := range src {
			if k >= 0 {
				r[j] = row[k]
			}
		}
		out.Values[i] = r
	}
	return out
}

// DropNA removes every row that has at least one missing cell.
func (m PriceMatrix) DropNA() PriceMatrix {
	out := PriceMatrix{Tickers: slices.Clone(m.Tickers)}
	for i, row := range m.Values {
		if hasNaN(row) {
			continue
		}
		out.Dates = append(out.Dates, m.Dates[i])
		out.Values = append(out.Values, slices.Clone(row))
	}
	return out
}

// Returns computes simple period-over-period returns p[t]/p[t-1]-1 between
// consecutive rows. The first row has no predecessor and is dropped, so a
// matrix of n rows yields n-1 return rows. Callers drop missing rows first.
func (m PriceMatrix) Returns() ReturnMatrix {
	out := ReturnMatrix{Tickers: slices.Clone(m.Tickers)}
	for i := 1; i < len(m.Values); i++ {
		prev, cur := m.Values[i-1], m.Values[i]
		r := make([]float64, len(cur))
		for j := range cur {
			r[j] = cur[j]/prev[j] - 1
		}
		if hasNaN(r) {
			continue
		}
		out.Dates = append(out.Dates, m.Dates[i])
		out.Values = append(out.Values, r)
	}
	return out
}

// Column returns the non-missing observations of ticker.
func (m PriceMatrix) Column(ticker string) Series {
	var s Series
	j := slices.Index(m.Tickers, ticker)
	if j < 0 {
		return s
	}
	for i, row := range m.Values {
		if math.IsNaN(row[j]) {
			continue
		}
		s.Dates = append(s.Dates, m.Dates[i])
		s.Values = append(s.Values, row[j])
	}
	return s
}

// Flatten melts the matrix back into points, skipping missing cells.
func (m PriceMatrix) Flatten() []PricePoint {
	var out []PricePoint
	for i, row := range m.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			out = append(out, PricePoint{Date: m.Dates[i], Ticker: m.Tickers[j], Price: v})
		}
	}
	return out
}

// ReturnMatrix holds simple returns, same layout as PriceMatrix.
type ReturnMatrix struct {
	Dates   []date.Date `json:"dates"`
	Tickers []string    `json:"tickers"`
	Values  [][]float64 `json:"values"`
}

func (r ReturnMatrix) Empty() bool { return len(r.Dates) == 0 || len(r.Tickers) == 0 }

// Column returns the returns of the j-th ticker.
func (r ReturnMatrix) Column(j int) []float64 {
	out := make([]float64, len(r.Values))
	for i, row := range r.Values {
		out[i] = row[j]
	}
	return out
}

func nanRow(n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = math.NaN()
	}
	return r
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
