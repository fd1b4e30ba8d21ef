package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Seed populates the database with a small initial category tree for
// development. It is a no-op when any categories already exist.
//
// The seeded shape is:
//
//	electronics
//	├── computers
//	│   └── laptops
//	└── audio
//	books
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := func(name, slug string, parentID *int64, path string) (int64, error) {
		var id int64
		err := tx.QueryRow(`
			INSERT INTO categories (name, slug, parent_id, path)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, name, slug, parentID, path).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("seed insert %q: %w", slug, err)
		}
		return id, nil
	}

	electronics, err := insert("Electronics", "electronics", nil, "")
	if err != nil {
		return err
	}
	computers, err := insert("Computers", "computers", &electronics, fmt.Sprintf("%d/", electronics))
	if err != nil {
		return err
	}
	if _, err := insert("Laptops", "laptops", &computers, fmt.Sprintf("%d/%d/", electronics, computers)); err != nil {
		return err
	}
	if _, err := insert("Audio", "audio", &electronics, fmt.Sprintf("%d/", electronics)); err != nil {
		return err
	}
	if _, err := insert("Books", "books", nil, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with starter category tree")
	return nil
}
