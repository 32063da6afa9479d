package marketdata

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// row is a single ISS table row keyed by column name.
type row map[string]any

// decodeFirstRow reads the first row of the ISS table named block, e.g. "history" or "dates".
// An empty table or a row whose width differs from the column list is reported as ErrNoData.
func decodeFirstRow(r io.Reader, block string) (row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode ISS response")
	}

	columnsRaw, err := jsonpath.Get("$."+block+".columns", doc)
	if err != nil {
		return nil, errors.Wrapf(ErrNoData, "missing %s.columns: %v", block, err)
	}
	dataRaw, err := jsonpath.Get("$."+block+".data", doc)
	if err != nil {
		return nil, errors.Wrapf(ErrNoData, "missing %s.data: %v", block, err)
	}

	columns, ok := columnsRaw.([]any)
	if !ok {
		return nil, errors.Wrapf(ErrNoData, "%s.columns is not a list", block)
	}
	data, ok := dataRaw.([]any)
	if !ok || len(data) == 0 {
		return nil, errors.Wrapf(ErrNoData, "%s.data is empty", block)
	}
	values, ok := data[0].([]any)
	if !ok {
		return nil, errors.Wrapf(ErrNoData, "%s.data[0] is not a list", block)
	}
	if len(values) != len(columns) {
		return nil, errors.Wrapf(ErrNoData, "%s: %d columns but %d values", block, len(columns), len(values))
	}

	out := make(row, len(columns))
	for i, c := range columns {
		name, ok := c.(string)
		if !ok {
			return nil, errors.Wrapf(ErrNoData, "%s.columns[%d] is not a string", block, i)
		}
		out[name] = values[i]
	}

	return out, nil
}

func (r row) str(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// dec returns zero for null and missing cells.
func (r row) dec(col string) (decimal.Decimal, error) {
	switch v := r[col].(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "column %s", col)
		}
		return d, nil
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "column %s", col)
		}
		return d, nil
	default:
		return decimal.Zero, errors.Errorf("column %s: unexpected type %T", col, v)
	}
}

func (r row) int(col string) (int64, error) {
	switch v := r[col].(type) {
	case nil:
		return 0, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		// volumes occasionally arrive as floats
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0, errors.Wrapf(err, "column %s", col)
		}
		return d.IntPart(), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "column %s", col)
		}
		return n, nil
	default:
		return 0, errors.Errorf("column %s: unexpected type %T", col, v)
	}
}
