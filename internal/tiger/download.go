package tiger

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/fetcher"
)

// Download fetches a TIGER/Line ZIP file and extracts it under destDir.
// An existing non-empty ZIP is reused. Returns the path to the .shp file.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}

	parts := strings.Split(url, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading TIGER shapefile")
		n, err := f.DownloadToFile(ctx, url, zipPath)
		if err != nil {
			_ = os.Remove(zipPath)
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
		log.Info("downloaded TIGER shapefile", zap.Int64("bytes", n))
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, ".zip"))
	shpPath, err := fetcher.ExtractShapefile(zipPath, extractDir)
	if err != nil {
		return "", eris.Wrap(err, "tiger: extract shapefile")
	}
	return shpPath, nil
}
