package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// shapefileParts are the sidecars a shapefile layer is read from. Anything
// else in the archive (TIGER ships ISO metadata XML) is skipped.
var shapefileParts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// requiredParts must be present next to the .shp.
var requiredParts = []string{".shx", ".dbf"}

// ExtractShapefile unpacks the single shapefile layer in a ZIP archive into
// destDir, flattening any folders, and returns the path of its .shp file.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var layer string
	parts := map[string]*zip.File{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if path.IsAbs(f.Name) || slices.Contains(strings.Split(f.Name, "/"), "..") {
			return "", eris.Errorf("zip: illegal path %q", f.Name)
		}
		base := path.Base(f.Name)
		ext := strings.ToLower(path.Ext(base))
		if !slices.Contains(shapefileParts, ext) {
			continue
		}
		stem := strings.TrimSuffix(base, path.Ext(base))
		if ext == ".shp" {
			if layer != "" && layer != stem {
				return "", eris.Errorf("zip: %s holds more than one layer (%s, %s)", zipPath, layer, stem)
			}
			layer = stem
		}
		if _, dup := parts[base]; dup {
			return "", eris.Errorf("zip: %s appears twice in %s", base, zipPath)
		}
		parts[base] = f
	}
	if layer == "" {
		return "", eris.Errorf("zip: no .shp file in %s", zipPath)
	}

	for _, ext := range requiredParts {
		if findPart(parts, layer, ext) == nil {
			return "", eris.Errorf("zip: layer %s has no %s file", layer, ext)
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create directory")
	}
	var shpPath string
	for _, ext := range shapefileParts {
		f := findPart(parts, layer, ext)
		if f == nil {
			continue
		}
		dest := filepath.Join(destDir, path.Base(f.Name))
		if err := extractEntry(f, dest); err != nil {
			return "", err
		}
		if ext == ".shp" {
			shpPath = dest
		}
	}

	zap.L().Debug("extracted shapefile",
		zap.String("component", "fetcher.zip"),
		zap.String("archive", zipPath),
		zap.String("layer", layer),
	)
	return shpPath, nil
}

// findPart matches the layer's sidecar case-insensitively on the extension.
func findPart(parts map[string]*zip.File, layer, ext string) *zip.File {
	for base, f := range parts {
		if strings.TrimSuffix(base, path.Ext(base)) == layer && strings.EqualFold(path.Ext(base), ext) {
			return f
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	return nil
}
