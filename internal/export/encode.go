package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/solarvest/platform/internal/model"
)

// Encode writes the dataset in the requested format and returns the row count.
func Encode(w io.Writer, format model.ExportFormat, ds *Dataset) (int64, error) {
	switch format {
	case model.FormatCSV:
		return encodeCSV(w, ds)
	case model.FormatJSON:
		return encodeJSON(w, ds)
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
}

func encodeCSV(w io.Writer, ds *Dataset) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, v := range row {
			record[i] = csvValue(v)
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return int64(len(ds.Rows)), nil
}

func csvValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// encodeJSON streams an array of objects keyed by column name.
func encodeJSON(w io.Writer, ds *Dataset) (int64, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, err
	}
	for n, row := range ds.Rows {
		obj := make(map[string]any, len(ds.Columns))
		for i, c := range ds.Columns {
			obj[c] = row[i]
		}
		b, err := json.Marshal(obj)
		if err != nil {
			return 0, fmt.Errorf("encode json row: %w", err)
		}
		if n > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return 0, err
			}
		}
		if _, err := w.Write(b); err != nil {
			return 0, err
		}
	}
	if _, err := io.WriteString(w, "]"); err != nil {
		return 0, err
	}
	return int64(len(ds.Rows)), nil
}

// FileExtension returns the object key suffix for a format.
func FileExtension(format model.ExportFormat) string {
	if format == model.FormatJSON {
		return "json"
	}
	return "csv"
}
