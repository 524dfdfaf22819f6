package duckdb

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tabletalk/tabletalk/internal/table"
)

// loadTable writes tbl to a parquet file at path and materializes it as a
// DuckDB table named after tbl.Name with the original column order.
func loadTable(ctx context.Context, conn *sql.Conn, path string, tbl *table.Table) error {
	if len(tbl.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", tbl.Name)
	}
	data, err := encodeParquet(tbl)
	if err != nil {
		return fmt.Errorf("encode table %q: %w", tbl.Name, err)
	}
	if err := writeFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write local parquet file %q: %w", path, err)
	}

	selects := make([]string, 0, len(tbl.Columns))
	for i, col := range tbl.Columns {
		selects = append(selects, fmt.Sprintf("%s AS %s", quoteIdent(fieldName(i)), quoteIdent(col.Name)))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM read_parquet(%s)",
		quoteIdent(tbl.Name), strings.Join(selects, ", "), quoteString(path))
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %q: %w", tbl.Name, err)
	}
	return nil
}

// fieldName gives positional parquet field names. Group nodes order their
// fields by name, so zero padding keeps the leaf order equal to the column
// order.
func fieldName(index int) string {
	return fmt.Sprintf("c%05d", index)
}

func encodeParquet(tbl *table.Table) ([]byte, error) {
	group := parquet.Group{}
	for i, col := range tbl.Columns {
		group[fieldName(i)] = parquet.Optional(leafNode(col.Kind))
	}
	schema := parquet.NewSchema(tbl.Name, group)

	rowCount := tbl.RowCount()
	rows := make([]parquet.Row, 0, rowCount)
	for r := 0; r < rowCount; r++ {
		row := make(parquet.Row, len(tbl.Columns))
		for c, col := range tbl.Columns {
			row[c] = parquetValue(col.Kind, col.Values[r]).Level(0, definitionLevel(col.Kind, col.Values[r]), c)
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func leafNode(kind table.Kind) parquet.Node {
	switch kind {
	case table.KindNumeric:
		return parquet.Leaf(parquet.DoubleType)
	case table.KindTemporal:
		return parquet.Date()
	default:
		return parquet.String()
	}
}

func parquetValue(kind table.Kind, value any) parquet.Value {
	switch kind {
	case table.KindNumeric:
		if f, ok := value.(float64); ok {
			return parquet.DoubleValue(f)
		}
	case table.KindTemporal:
		if ts, ok := value.(time.Time); ok {
			return parquet.Int32Value(daysSinceEpoch(ts))
		}
	default:
		if value != nil {
			return parquet.ByteArrayValue([]byte(table.FormatValue(value)))
		}
	}
	return parquet.NullValue()
}

func definitionLevel(kind table.Kind, value any) int {
	if parquetValue(kind, value).IsNull() {
		return 0
	}
	return 1
}

func daysSinceEpoch(ts time.Time) int32 {
	y, m, d := ts.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / 86400)
}
