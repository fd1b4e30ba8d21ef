// Package main is a bulk CSV importer for categories. It streams rows
// from a CSV file with columns name, slug, parent_id, path and inserts
// them in chunked multi-row statements, bypassing the API for large
// initial loads.
//
// Usage:
//
//	taxo-import /path/to/categories.csv
package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"taxo/internal/config"
	"taxo/internal/database"
	"taxo/internal/treepath"
)

// chunkSize is the number of rows per INSERT statement.
const chunkSize = 500

// row is one parsed CSV record. path is normalized through the codec and
// checked against parent_id; the importer does not recompute ancestry, so
// run it only with dumps whose paths are already consistent.
type row struct {
	name     string
	slug     string
	parentID *int64
	path     string
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <csv-file>\n", os.Args[0])
		os.Exit(2)
	}
	filePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	imported, skipped, err := importFile(db, filePath)
	if err != nil {
		slog.Error("import failed", "file", filePath, "error", err)
		os.Exit(1)
	}

	slog.Info("import finished",
		"file", filePath,
		"imported", imported,
		"skipped", skipped,
		"duration", time.Since(start).String(),
	)
}

// importFile streams the CSV and inserts rows in chunks. The header
// line is skipped; rows with fewer than four fields are logged and
// dropped. Returns imported and skipped row counts.
func importFile(db *sql.DB, filePath string) (imported, skipped int, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// Skip the header line.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read header: %w", err)
	}

	chunk := make([]row, 0, chunkSize)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, fmt.Errorf("read csv: %w", err)
		}
		if len(record) < 4 {
			slog.Warn("skipping incomplete row", "row", strings.Join(record, ","))
			skipped++
			continue
		}

		r := row{
			name: record[0],
			slug: record[1],
		}
		if record[2] != "" {
			id, err := strconv.ParseInt(record[2], 10, 64)
			if err != nil {
				slog.Warn("skipping row with bad parent_id", "parent_id", record[2])
				skipped++
				continue
			}
			r.parentID = &id
		}

		// Normalize the path and make sure its last ancestor is the
		// declared parent; a mismatch means the dump is inconsistent.
		ids, err := treepath.AncestorIDs(record[3])
		if err != nil {
			slog.Warn("skipping row with bad path", "path", record[3], "error", err)
			skipped++
			continue
		}
		if !pathMatchesParent(ids, r.parentID) {
			slog.Warn("skipping row whose path disagrees with parent_id",
				"path", record[3], "parent_id", record[2])
			skipped++
			continue
		}
		r.path = treepath.Join(ids)

		chunk = append(chunk, r)
		if len(chunk) == chunkSize {
			if err := insertChunk(db, chunk); err != nil {
				return imported, skipped, err
			}
			imported += len(chunk)
			chunk = chunk[:0]
		}
	}

	if len(chunk) > 0 {
		if err := insertChunk(db, chunk); err != nil {
			return imported, skipped, err
		}
		imported += len(chunk)
	}
	return imported, skipped, nil
}

// pathMatchesParent reports whether an ancestor chain ends in the declared
// parent: a root row must carry an empty chain.
func pathMatchesParent(ids []int64, parentID *int64) bool {
	if parentID == nil {
		return len(ids) == 0
	}
	return len(ids) > 0 && ids[len(ids)-1] == *parentID
}

// insertChunk writes one multi-row INSERT for the chunk.
func insertChunk(db *sql.DB, chunk []row) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO categories (name, slug, parent_id, path) VALUES ")

	args := make([]any, 0, len(chunk)*4)
	for i, r := range chunk {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, r.name, r.slug, r.parentID, r.path)
	}

	if _, err := db.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert chunk of %d: %w", len(chunk), err)
	}
	return nil
}
