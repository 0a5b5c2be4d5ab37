package instrumentsync

import (
	"encoding/csv"
	"io"
	"strings"

	"stock-data-ingest/internal/model"
)

const (
	headerExchange      = "exchange"
	headerTradingSymbol = "trading_symbol"
	headerName          = "name"
	headerSegment       = "segment"
	headerSeries        = "series"
)

// ParseRows parses the instrument feed CSV into transient rows. Headers are
// resolved case-insensitively by name, independent of column order; quoted
// fields are honored. Missing headers, a header-only body or malformed
// content yield an empty result, never an error.
func ParseRows(body string) []model.InstrumentRow {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil
	}

	idxExchange := headerIndex(header, headerExchange)
	idxSymbol := headerIndex(header, headerTradingSymbol)
	idxName := headerIndex(header, headerName)
	idxSegment := headerIndex(header, headerSegment)
	idxSeries := headerIndex(header, headerSeries)
	if idxExchange < 0 || idxSymbol < 0 || idxName < 0 || idxSegment < 0 || idxSeries < 0 {
		return nil
	}

	maxIdx := idxExchange
	for _, idx := range []int{idxSymbol, idxName, idxSegment, idxSeries} {
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	var rows []model.InstrumentRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// tolerate individually malformed lines
			continue
		}
		if len(record) <= maxIdx {
			continue
		}
		rows = append(rows, model.InstrumentRow{
			Exchange:      strings.TrimSpace(record[idxExchange]),
			TradingSymbol: strings.TrimSpace(record[idxSymbol]),
			Name:          strings.TrimSpace(record[idxName]),
			Segment:       strings.TrimSpace(record[idxSegment]),
			Series:        strings.TrimSpace(record[idxSeries]),
		})
	}
	return rows
}

func headerIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
