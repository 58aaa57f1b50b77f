package acs

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/accessmap/internal/model"
)

// Parse decodes a Census API table (a JSON array of string rows, header
// first) into GEOID → value. Negative sentinels (-666666666 and friends),
// NaN, infinities and non-numeric cells are treated as missing and omitted.
func Parse(data []byte, variable string) (model.Demographics, error) {
	var table [][]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "acs: parse json")
	}
	if len(table) == 0 {
		return nil, eris.New("acs: empty response")
	}

	col := map[string]int{}
	for i, h := range table[0] {
		col[h] = i
	}
	need := []string{variable, "state", "county", "tract"}
	for _, name := range need {
		if _, ok := col[name]; !ok {
			return nil, eris.Errorf("acs: response has no %q column", name)
		}
	}

	width := len(table[0])
	out := make(model.Demographics, len(table)-1)
	for _, row := range table[1:] {
		if len(row) < width {
			continue
		}
		geoid := row[col["state"]] + row[col["county"]] + row[col["tract"]]
		if v, ok := parseValue(row[col[variable]]); ok {
			out[geoid] = v
		}
	}
	return out, nil
}

func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// LoadCSV reads a local GEOID,value table. The first row is a header; the
// first column is the GEOID and the second the value.
func LoadCSV(path string) (model.Demographics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewSourceLoadError("demographics", path, err)
	}
	defer f.Close() //nolint:errcheck

	out, err := readCSV(f)
	if err != nil {
		return nil, model.NewSourceLoadError("demographics", path, err)
	}
	return out, nil
}

func readCSV(r io.Reader) (model.Demographics, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		return nil, eris.Wrap(err, "acs: read csv header")
	}

	out := model.Demographics{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "acs: read csv row")
		}
		if len(rec) < 2 || rec[0] == "" {
			continue
		}
		if v, ok := parseValue(rec[1]); ok {
			out[strings.TrimSpace(rec[0])] = v
		}
	}
	return out, nil
}
