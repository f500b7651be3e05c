package utils

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/logger"
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// ExportName is the base name of every file inside the export archive.
const ExportName = "cleaned_geometries"

// dbf column names are limited to 10 bytes
const maxFieldName = 10

// GenerateShapefileZip creates a zip file containing both JSON and shapefile formats.
// The shapefile part is omitted when no record has a final geometry a
// shapefile can hold.
func GenerateShapefileZip(jsonData []byte, records []*geometry.Record) ([]byte, error) {
	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	jsonFile, err := zipWriter.Create(ExportName + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in zip: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data to zip: %w", err)
	}

	if err := addShapefileToZip(zipWriter, records); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return zipBuffer.Bytes(), nil
}

// addShapefileToZip writes the shapefile into a temp dir, since go-shp only
// writes to paths, and copies its components into the archive.
func addShapefileToZip(zipWriter *zip.Writer, records []*geometry.Record) error {
	rows := exportRows(records)
	if len(rows) == 0 {
		return nil
	}
	shapeType, ok := exportShapeType(rows)
	if !ok {
		logger.L().Warn("shapefile_export_skipped", "rows", len(rows), "reason", "no supported geometry type")
		return nil
	}

	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, ExportName+".shp")
	if err := generateShapefile(shapefilePath, shapeType, rows); err != nil {
		return fmt.Errorf("failed to generate shapefile: %w", err)
	}

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		filePath := strings.TrimSuffix(shapefilePath, ".shp") + ext
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			continue
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}
		zipFile, err := zipWriter.Create(ExportName + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}
		if _, err := zipFile.Write(content); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}
	return nil
}

type exportRow struct {
	index      int
	geom       geom.T
	properties map[string]interface{}
}

func exportRows(records []*geometry.Record) []exportRow {
	rows := make([]exportRow, 0, len(records))
	for _, rec := range records {
		final, ok := rec.FinalGeometry()
		if !ok || final.IsEmpty() {
			continue
		}
		rows = append(rows, exportRow{index: rec.Index(), geom: final.T(), properties: rec.Properties})
	}
	return rows
}

func shapeTypeOf(g geom.T) (shp.ShapeType, bool) {
	switch g.(type) {
	case *geom.Point:
		return shp.POINT, true
	case *geom.MultiPoint:
		return shp.MULTIPOINT, true
	case *geom.LineString, *geom.MultiLineString:
		return shp.POLYLINE, true
	case *geom.Polygon, *geom.MultiPolygon:
		return shp.POLYGON, true
	}
	return shp.NULL, false
}

// exportShapeType is the shape family of the first row a shapefile can hold.
func exportShapeType(rows []exportRow) (shp.ShapeType, bool) {
	for _, row := range rows {
		if t, ok := shapeTypeOf(row.geom); ok {
			return t, true
		}
	}
	return shp.NULL, false
}

// generateShapefile writes rows of the given shape family. A shapefile holds
// a single shape type, so the rest are skipped.
func generateShapefile(shapefilePath string, shapeType shp.ShapeType, rows []exportRow) error {
	writer, err := shp.Create(shapefilePath, shapeType)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}
	defer writer.Close()

	columns := columnsFor(rows)
	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		fields[i] = c.field
	}
	if err := writer.SetFields(fields); err != nil {
		return fmt.Errorf("failed to set fields: %w", err)
	}

	log := logger.L()
	for _, row := range rows {
		if t, _ := shapeTypeOf(row.geom); t != shapeType {
			log.Warn("shapefile_feature_skipped", "index", row.index, "type", fmt.Sprintf("%T", row.geom))
			continue
		}
		shape, err := toShape(row.geom)
		if err != nil {
			log.Warn("shapefile_feature_skipped", "index", row.index, "err", err)
			continue
		}
		n := int(writer.Write(shape))
		for i, c := range columns {
			if err := writer.WriteAttribute(n, i, c.value(row)); err != nil {
				log.Warn("shapefile_attribute_error", "index", row.index, "field", c.key, "err", err)
			}
		}
	}
	return nil
}

type column struct {
	key   string
	field shp.Field
}

func (c column) value(row exportRow) interface{} {
	if c.key == geometry.IndexProperty {
		return row.index
	}
	v, ok := row.properties[c.key]
	if !ok || v == nil {
		switch c.field.Fieldtype {
		case 'N', 'F':
			return 0
		}
		return ""
	}
	switch c.field.Fieldtype {
	case 'F':
		if f, ok := v.(float64); ok {
			return f
		}
		return 0
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > int(c.field.Size) {
		s = s[:c.field.Size]
	}
	return s
}

// columnsFor builds one dbf column per property key seen across the rows,
// typed from the first non-null value, plus the record index.
func columnsFor(rows []exportRow) []column {
	first := make(map[string]interface{})
	for _, row := range rows {
		for k, v := range row.properties {
			if prev, seen := first[k]; !seen || prev == nil {
				first[k] = v
			}
		}
	}
	keys := make([]string, 0, len(first))
	for k := range first {
		if k != geometry.IndexProperty {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	columns := []column{{key: geometry.IndexProperty, field: shp.NumberField(geometry.IndexProperty, 10)}}
	names := map[string]bool{geometry.IndexProperty: true}
	for _, k := range keys {
		name := k
		if len(name) > maxFieldName {
			name = name[:maxFieldName]
		}
		if names[name] {
			continue
		}
		names[name] = true

		var field shp.Field
		switch v := first[k].(type) {
		case float64:
			field = shp.FloatField(name, 15, 5)
		case bool:
			field = shp.StringField(name, 5)
		case string:
			length := len(v)
			if length < 50 {
				length = 50
			}
			if length > 254 {
				length = 254
			}
			field = shp.StringField(name, uint8(length))
		default:
			field = shp.StringField(name, 100)
		}
		columns = append(columns, column{key: k, field: field})
	}
	return columns
}

func toShape(g geom.T) (shp.Shape, error) {
	switch g := g.(type) {
	case *geom.Point:
		return &shp.Point{X: g.X(), Y: g.Y()}, nil
	case *geom.MultiPoint:
		points := toPoints(g.Coords())
		return &shp.MultiPoint{Box: shp.BBoxFromPoints(points), NumPoints: int32(len(points)), Points: points}, nil
	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{toPoints(g.Coords())}), nil
	case *geom.MultiLineString:
		parts := make([][]shp.Point, 0, g.NumLineStrings())
		for i := 0; i < g.NumLineStrings(); i++ {
			parts = append(parts, toPoints(g.LineString(i).Coords()))
		}
		return shp.NewPolyLine(parts), nil
	case *geom.Polygon:
		polygon := shp.Polygon(*shp.NewPolyLine(rings(g)))
		return &polygon, nil
	case *geom.MultiPolygon:
		var parts [][]shp.Point
		for i := 0; i < g.NumPolygons(); i++ {
			parts = append(parts, rings(g.Polygon(i))...)
		}
		polygon := shp.Polygon(*shp.NewPolyLine(parts))
		return &polygon, nil
	}
	return nil, fmt.Errorf("unsupported geometry type: %T", g)
}

// rings returns p's rings wound the way shapefiles expect: the shell
// clockwise, holes counter-clockwise.
func rings(p *geom.Polygon) [][]shp.Point {
	out := make([][]shp.Point, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		points := toPoints(ring.Coords())
		// IsRingCounterClockwise panics below 3 distinct points
		if len(points) >= 4 && xy.IsRingCounterClockwise(ring.Layout(), ring.FlatCoords()) == (i == 0) {
			slices.Reverse(points)
		}
		out = append(out, points)
	}
	return out
}

func toPoints(coords []geom.Coord) []shp.Point {
	points := make([]shp.Point, len(coords))
	for i, c := range coords {
		points[i] = shp.Point{X: c.X(), Y: c.Y()}
	}
	return points
}
