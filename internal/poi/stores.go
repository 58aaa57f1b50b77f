// Package poi loads store point locations from shapefile, GeoJSON or CSV
// exports and reprojects them into the working CRS.
package poi

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/accessmap/internal/geo"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/projection"
)

// Options names the store attributes and coordinate systems.
type Options struct {
	IDField     string
	NameField   string
	StatusField string
	LatField    string
	LonField    string
	SourceCRS   int
	TargetCRS   int
}

// LoadStores reads the store layer at path. Only the id, name and status
// attributes are kept; names are NFC-normalised and trimmed.
func LoadStores(path string, opts Options) ([]model.Store, error) {
	var (
		stores []model.Store
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		stores, err = readCSV(path, opts)
	default:
		stores, err = readVector(path, opts)
	}
	if err != nil {
		return nil, model.NewSourceLoadError("stores", path, err)
	}

	tr, err := projection.NewTransformer(opts.SourceCRS, opts.TargetCRS)
	if err != nil {
		return nil, model.NewSourceLoadError("stores", path, err)
	}
	for i := range stores {
		g, err := tr.Project(stores[i].Location)
		if err != nil {
			return nil, model.NewSourceLoadError("stores", path, eris.Wrapf(err, "poi: reproject store %s", stores[i].ID))
		}
		stores[i].Location = g.(*geom.Point)
	}

	zap.L().Info("loaded stores",
		zap.String("component", "poi"),
		zap.String("path", path),
		zap.Int("stores", len(stores)),
	)
	return stores, nil
}

func readVector(path string, opts Options) ([]model.Store, error) {
	fields := []string{opts.NameField, opts.StatusField}
	if opts.IDField != "" {
		fields = append(fields, opts.IDField)
	}
	features, err := geo.Read(path, fields)
	if err != nil {
		return nil, err
	}

	out := make([]model.Store, 0, len(features))
	for i, f := range features {
		var pt *geom.Point
		switch g := f.Geometry.(type) {
		case *geom.Point:
			pt = g
		case *geom.MultiPoint:
			if g.NumPoints() == 0 {
				continue
			}
			pt = g.Point(0)
		default:
			return nil, eris.Errorf("poi: record %d is %T, want point", i, f.Geometry)
		}
		out = append(out, newStore(i, f.Attr(opts.IDField), f.Attr(opts.NameField), f.Attr(opts.StatusField), pt.X(), pt.Y()))
	}
	return out, nil
}

func readCSV(path string, opts Options) ([]model.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "poi: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "poi: read csv header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	index := func(name string) int {
		if i, ok := col[strings.ToLower(name)]; ok {
			return i
		}
		return -1
	}
	nameIdx, statusIdx := index(opts.NameField), index(opts.StatusField)
	latIdx, lonIdx := index(opts.LatField), index(opts.LonField)
	idIdx := index(opts.IDField)
	for name, idx := range map[string]int{opts.NameField: nameIdx, opts.StatusField: statusIdx, opts.LatField: latIdx, opts.LonField: lonIdx} {
		if idx < 0 {
			return nil, eris.Errorf("poi: csv has no %q column", name)
		}
	}

	var out []model.Store
	var skipped int
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "poi: read csv row %d", row+1)
		}
		get := func(i int) string {
			if i < 0 || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		lat, latErr := strconv.ParseFloat(get(latIdx), 64)
		lon, lonErr := strconv.ParseFloat(get(lonIdx), 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}
		out = append(out, newStore(row, get(idIdx), get(nameIdx), get(statusIdx), lon, lat))
	}
	if skipped > 0 {
		zap.L().Warn("poi: skipped csv rows without coordinates",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func newStore(i int, id, name, status string, x, y float64) model.Store {
	if id == "" {
		id = fmt.Sprintf("store-%d", i)
	}
	return model.Store{
		ID:       id,
		Name:     strings.TrimSpace(norm.NFC.String(name)),
		Status:   strings.TrimSpace(status),
		Location: geom.NewPointFlat(geom.XY, []float64{x, y}),
	}
}
