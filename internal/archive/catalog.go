package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/thermal.report/internal/raster"
)

// SceneCatalog is a SQLite-backed Archive for frozen local scene sets.
// Band grids are persisted as gzip-compressed gob blobs next to the scene
// metadata, so a whole multi-decade archive lives in one file and queries
// stay reproducible run over run.
type SceneCatalog struct {
	db *sql.DB
}

// sceneBlob is the gob-encoded payload stored per scene.
type sceneBlob struct {
	Bands map[string]*raster.Grid
}

// OpenCatalog opens (creating if needed) a scene catalog at path.
func OpenCatalog(path string) (*SceneCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open scene catalog: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scenes (
			scene_id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			sensor TEXT NOT NULL,
			acquired_unix_nanos INTEGER NOT NULL,
			cloud_cover DOUBLE NOT NULL,
			min_x DOUBLE NOT NULL,
			min_y DOUBLE NOT NULL,
			max_x DOUBLE NOT NULL,
			max_y DOUBLE NOT NULL,
			ref_json TEXT NOT NULL,
			bands_blob BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scenes_query
			ON scenes (collection, acquired_unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create scene schema: %w", err)
	}
	return &SceneCatalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SceneCatalog) Close() error { return c.db.Close() }

// Put stores one scene under the given collection identifier.
func (c *SceneCatalog) Put(ctx context.Context, collection string, img *raster.Image) error {
	blob, err := encodeBands(img.Bands)
	if err != nil {
		return fmt.Errorf("encode scene bands: %w", err)
	}
	refJSON, err := json.Marshal(img.Ref)
	if err != nil {
		return fmt.Errorf("encode scene ref: %w", err)
	}
	width, height := img.Size()
	minX := img.Ref.OriginX
	maxX := img.Ref.OriginX + float64(width)*img.Ref.CellSize
	maxY := img.Ref.OriginY
	minY := img.Ref.OriginY - float64(height)*img.Ref.CellSize

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO scenes (collection, sensor, acquired_unix_nanos, cloud_cover,
			min_x, min_y, max_x, max_y, ref_json, bands_blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		collection, img.Sensor, img.AcquiredAt.UnixNano(), img.CloudCover,
		minX, minY, maxX, maxY, string(refJSON), blob)
	if err != nil {
		return fmt.Errorf("insert scene: %w", err)
	}
	return nil
}

// Scenes implements Archive. Results are ordered ascending by acquisition
// time; the SQL rowid breaks timestamp ties so ordering is stable across
// runs.
func (c *SceneCatalog) Scenes(ctx context.Context, q Query) (*raster.Collection, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT sensor, acquired_unix_nanos, cloud_cover, ref_json, bands_blob
		FROM scenes
		WHERE collection = ?
		  AND acquired_unix_nanos >= ? AND acquired_unix_nanos < ?
		  AND min_x < ? AND max_x > ? AND min_y < ? AND max_y > ?
		ORDER BY acquired_unix_nanos ASC, scene_id ASC`,
		q.Collection, q.Start.UnixNano(), q.End.UnixNano(),
		q.Bounds.MaxX, q.Bounds.MinX, q.Bounds.MaxY, q.Bounds.MinY)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	col := &raster.Collection{}
	for rows.Next() {
		var sensor, refJSON string
		var acquired int64
		var cloud float64
		var blob []byte
		if err := rows.Scan(&sensor, &acquired, &cloud, &refJSON, &blob); err != nil {
			return nil, fmt.Errorf("scan scene row: %w", err)
		}
		if q.MaxCloudPercent >= 0 && cloud > q.MaxCloudPercent {
			continue
		}
		t := time.Unix(0, acquired).UTC()
		if q.SeasonStart != 0 && q.SeasonEnd != 0 {
			if t.Month() < q.SeasonStart || t.Month() > q.SeasonEnd {
				continue
			}
		}
		var ref raster.SpatialRef
		if err := json.Unmarshal([]byte(refJSON), &ref); err != nil {
			return nil, fmt.Errorf("decode scene ref: %w", err)
		}
		bands, err := decodeBands(blob)
		if err != nil {
			return nil, fmt.Errorf("decode scene bands: %w", err)
		}
		col.Images = append(col.Images, &raster.Image{
			Bands:      bands,
			Ref:        ref,
			AcquiredAt: t,
			Sensor:     sensor,
			CloudCover: cloud,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenes: %w", err)
	}
	return col, nil
}

// encodeBands gob-encodes the band map and gzips the result.
func encodeBands(bands map[string]*raster.Grid) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(sceneBlob{Bands: bands}); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeBands reverses encodeBands.
func decodeBands(blob []byte) (map[string]*raster.Grid, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var payload sceneBlob
	if err := gob.NewDecoder(zr).Decode(&payload); err != nil && err != io.EOF {
		return nil, err
	}
	return payload.Bands, nil
}
