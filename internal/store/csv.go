package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thrasher-corp/candlereplay/internal/candle"
)

// Two CSV layouts are accepted for a timeframe's historical file:
//
//   - epoch layout: lowercase header "time,open,high,low,close,volume",
//     first column a unix second timestamp.
//   - datetime layout: capitalized header "Date,Open,High,Low,Close,Volume"
//     (or no header row at all), first column a day-first datetime string.
//
// loadCSV sniffs the header row to pick a layout, then parses every data
// row into a candle.Candle. Rows that fail to parse numerically are
// skipped rather than aborting the whole load, since a single malformed
// historical row should not take an entire timeframe offline.
func loadCSV(path string) ([]candle.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("store: reading header of %s: %w", path, err)
	}

	epochLayout := len(header) > 0 && strings.EqualFold(strings.TrimSpace(header[0]), "time")

	var out []candle.Candle
	if !epochLayout && len(header) >= 6 {
		// A datetime file without a header row: its first record is data.
		if c, err := parseDatetimeRow(header); err == nil {
			out = append(out, c)
		}
	}
	lineNo := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			return nil, fmt.Errorf("store: reading %s line %d: %w", path, lineNo, err)
		}
		if len(row) < 6 {
			continue
		}
		var c candle.Candle
		if epochLayout {
			c, err = parseEpochRow(row)
		} else {
			c, err = parseDatetimeRow(row)
		}
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func parseEpochRow(row []string) (candle.Candle, error) {
	t, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return candle.Candle{}, err
	}
	o, h, l, c, v, err := parseOHLCV(row[1], row[2], row[3], row[4], row[5])
	if err != nil {
		return candle.Candle{}, err
	}
	return candle.Candle{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v}, nil
}

func parseDatetimeRow(row []string) (candle.Candle, error) {
	ts, err := parseFlexibleDatetime(strings.TrimSpace(row[0]))
	if err != nil {
		return candle.Candle{}, err
	}
	o, h, l, c, v, err := parseOHLCV(row[1], row[2], row[3], row[4], row[5])
	if err != nil {
		return candle.Candle{}, err
	}
	return candle.Candle{Time: ts.Unix(), Open: o, High: h, Low: l, Close: c, Volume: v}, nil
}

func parseOHLCV(openS, highS, lowS, closeS, volS string) (open, high, low, closeV, vol float64, err error) {
	open, err = strconv.ParseFloat(strings.TrimSpace(openS), 64)
	if err != nil {
		return
	}
	high, err = strconv.ParseFloat(strings.TrimSpace(highS), 64)
	if err != nil {
		return
	}
	low, err = strconv.ParseFloat(strings.TrimSpace(lowS), 64)
	if err != nil {
		return
	}
	closeV, err = strconv.ParseFloat(strings.TrimSpace(closeS), 64)
	if err != nil {
		return
	}
	if strings.TrimSpace(volS) == "" || strings.EqualFold(strings.TrimSpace(volS), "null") {
		vol = 0
		return
	}
	vol, err = strconv.ParseFloat(strings.TrimSpace(volS), 64)
	return
}

// datetimeLayouts are tried in order. The day-first layout matches the
// convention this codebase already uses for its own log timestamps, and
// is tried before any month-first interpretation to resolve the
// day/month ambiguity consistently with that precedent.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006-01-02",
}

func parseFlexibleDatetime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("store: no layout matched datetime %q: %w", s, lastErr)
}
