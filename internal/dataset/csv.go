// Package dataset reads and writes the pipeline's flat files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"FinForecast/internal/model"
)

// DateLayout is the date format of every CSV column named Date.
const DateLayout = "2006-01-02"

// RawHeader is the long-format header of the combined raw file.
var RawHeader = []string{"Date", "Ticker", "Open", "High", "Low", "Close", "Adj Close", "Volume"}

// ProcessedHeader extends RawHeader with derived columns.
var ProcessedHeader = append(append([]string{}, RawHeader...),
	"Return", "Log Return", "Rolling Mean", "Rolling Std", "Volatility", "RSI")

// ForecastHeader is the header of the forecast file.
var ForecastHeader = []string{"Date", "Ticker", "Forecast", "Lower", "Upper"}

var rawFields = []string{"Open", "High", "Low", "Close", "Adj Close", "Volume"}

// createFile makes the parent directory and truncates path.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	return os.Create(path)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNull(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

// parseNull treats empty, NaN and null cells as missing.
func parseNull(s string) (null.Float, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "na":
		return null.Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	if math.IsNaN(v) {
		return null.Float{}, nil
	}
	return null.FloatFrom(v), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)] // tolerate "2015-01-02 00:00:00"
	}
	return time.Parse(DateLayout, s)
}

// WriteRaw writes series in long format, one row per (ticker, date).
func WriteRaw(path string, series []model.RawSeries) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := EncodeRaw(f, series); err != nil {
		return err
	}
	return f.Close()
}

// EncodeRaw writes the long-format raw CSV to w.
func EncodeRaw(w io.Writer, series []model.RawSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RawHeader); err != nil {
		return err
	}
	for _, s := range series {
		for _, b := range s.Bars {
			rec := []string{
				b.Time.Format(DateLayout), s.Symbol,
				formatNull(b.Open), formatNull(b.High), formatNull(b.Low),
				formatNull(b.Close), formatNull(b.AdjClose), formatNull(b.Volume),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRaw loads a raw CSV file in long or wide format.
func ReadRaw(path string) ([]model.RawSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeRaw(f)
}

// DecodeRaw parses a raw CSV. The long format has a Ticker column; the wide
// format has one "<TICKER>_<Field>" column per ticker and field. Series are
// returned in order of first appearance.
func DecodeRaw(r io.Reader) ([]model.RawSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if len(header) == 0 || !strings.EqualFold(header[0], "Date") {
		return nil, errors.New("first column must be Date")
	}
	if indexOf(header, "Ticker") >= 0 {
		return decodeLong(cr, header)
	}
	return decodeWide(cr, header)
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func decodeLong(cr *csv.Reader, header []string) ([]model.RawSeries, error) {
	tickerIdx := indexOf(header, "Ticker")
	cols := make([]int, len(rawFields))
	for i, name := range rawFields {
		cols[i] = indexOf(header, name)
	}
	if cols[3] < 0 {
		return nil, errors.New("missing Close column")
	}

	var order []string
	bySymbol := map[string]*model.RawSeries{}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseBar(rec, 0, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sym := strings.TrimSpace(rec[tickerIdx])
		s, ok := bySymbol[sym]
		if !ok {
			s = &model.RawSeries{Symbol: sym}
			bySymbol[sym] = s
			order = append(order, sym)
		}
		s.Bars = append(s.Bars, bar)
	}
	out := make([]model.RawSeries, len(order))
	for i, sym := range order {
		out[i] = *bySymbol[sym]
	}
	return out, nil
}

func decodeWide(cr *csv.Reader, header []string) ([]model.RawSeries, error) {
	var order []string
	colsBySymbol := map[string][]int{}
	for i, h := range header[1:] {
		sym, field, ok := strings.Cut(h, "_")
		if !ok {
			continue
		}
		idx := -1
		for j, name := range rawFields {
			if strings.EqualFold(field, name) {
				idx = j
			}
		}
		if idx < 0 {
			continue
		}
		cols, seen := colsBySymbol[sym]
		if !seen {
			cols = []int{-1, -1, -1, -1, -1, -1}
			order = append(order, sym)
		}
		cols[idx] = i + 1
		colsBySymbol[sym] = cols
	}
	if len(order) == 0 {
		return nil, errors.New("no <TICKER>_<Field> columns found")
	}

	out := make([]model.RawSeries, len(order))
	for i, sym := range order {
		out[i].Symbol = sym
	}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i, sym := range order {
			bar, err := parseBar(rec, 0, colsBySymbol[sym])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			out[i].Bars = append(out[i].Bars, bar)
		}
	}
	return out, nil
}

func parseBar(rec []string, dateIdx int, cols []int) (model.RawBar, error) {
	var b model.RawBar
	t, err := parseDate(rec[dateIdx])
	if err != nil {
		return b, fmt.Errorf("parse date %q: %w", rec[dateIdx], err)
	}
	b.Time = t
	targets := []*null.Float{&b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume}
	for i, c := range cols {
		if c < 0 || c >= len(rec) {
			continue
		}
		v, err := parseNull(rec[c])
		if err != nil {
			return b, fmt.Errorf("parse %s %q: %w", rawFields[i], rec[c], err)
		}
		*targets[i] = v
	}
	return b, nil
}

// WriteProcessed writes cleaned series with their derived columns.
func WriteProcessed(path string, series []model.ProcessedSeries) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(ProcessedHeader); err != nil {
		return err
	}
	for _, s := range series {
		for i, b := range s.Bars {
			rec := []string{
				b.Time.Format(DateLayout), s.Symbol,
				formatFloat(b.Open), formatFloat(b.High), formatFloat(b.Low),
				formatFloat(b.Close), formatFloat(b.AdjClose), formatFloat(b.Volume),
				formatFloat(s.Returns[i]), formatFloat(s.LogReturns[i]),
				formatFloat(s.RollingMean[i]), formatFloat(s.RollingStd[i]),
				formatFloat(s.Volatility[i]), formatFloat(s.RSI[i]),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ReadProcessed loads the price columns of a processed file as clean series.
// Derived columns are recomputed by the caller.
func ReadProcessed(path string) ([]model.PriceSeries, error) {
	raw, err := ReadRaw(path)
	if err != nil {
		return nil, err
	}
	out := make([]model.PriceSeries, len(raw))
	for i, rs := range raw {
		out[i].Symbol = rs.Symbol
		out[i].Bars = make([]model.OHLCV, len(rs.Bars))
		for j, b := range rs.Bars {
			if !b.Close.Valid {
				return nil, fmt.Errorf("%s %s: missing close in processed data", rs.Symbol, b.Time.Format(DateLayout))
			}
			out[i].Bars[j] = model.OHLCV{
				Time:     b.Time,
				Open:     b.Open.ValueOrZero(),
				High:     b.High.ValueOrZero(),
				Low:      b.Low.ValueOrZero(),
				Close:    b.Close.Float64,
				AdjClose: b.AdjClose.ValueOrZero(),
				Volume:   b.Volume.ValueOrZero(),
			}
		}
	}
	return out, nil
}

// WriteForecasts writes every forecast point, tickers in input order.
func WriteForecasts(path string, forecasts []model.Forecast) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(ForecastHeader); err != nil {
		return err
	}
	for _, fc := range forecasts {
		for _, p := range fc.Points {
			rec := []string{p.Time.Format(DateLayout), fc.Symbol,
				formatFloat(p.Value), formatFloat(p.Lower), formatFloat(p.Upper)}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ReadForecasts loads a forecast file. Model metadata is not stored in the CSV.
func ReadForecasts(path string) ([]model.Forecast, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < len(ForecastHeader) {
		return nil, fmt.Errorf("unexpected forecast header %v", header)
	}
	var order []string
	bySymbol := map[string]*model.Forecast{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t, err := parseDate(rec[0])
		if err != nil {
			return nil, err
		}
		vals := make([]float64, 3)
		for i := range vals {
			v, err := parseNull(rec[2+i])
			if err != nil {
				return nil, err
			}
			vals[i] = v.ValueOrZero()
		}
		fc, ok := bySymbol[rec[1]]
		if !ok {
			fc = &model.Forecast{Symbol: rec[1]}
			bySymbol[rec[1]] = fc
			order = append(order, rec[1])
		}
		fc.Points = append(fc.Points, model.ForecastPoint{Time: t, Value: vals[0], Lower: vals[1], Upper: vals[2]})
	}
	out := make([]model.Forecast, len(order))
	for i, sym := range order {
		fc := bySymbol[sym]
		sort.Slice(fc.Points, func(a, b int) bool { return fc.Points[a].Time.Before(fc.Points[b].Time) })
		out[i] = *fc
	}
	return out, nil
}
