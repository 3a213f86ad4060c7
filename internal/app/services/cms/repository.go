package cms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Repository reads pages from the cms_blocks table.
type Repository struct {
	db *sqlx.DB
}

// NewRepository opens the page database.
func NewRepository(dsn string) (*Repository, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cms database: %w", err)
	}
	return &Repository{db: db}, nil
}

// NewRepositoryFromDB wraps an existing connection. Tests use this.
func NewRepositoryFromDB(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type pageRow struct {
	Title   string `db:"title"`
	Content string `db:"content"`
}

// ActivePage implements PageStore with a parameterized keyed read.
func (r *Repository) ActivePage(ctx context.Context, slug string) (Page, bool, error) {
	var row pageRow
	err := r.db.GetContext(ctx, &row,
		`SELECT title, content FROM cms_blocks WHERE slug = $1 AND is_active = TRUE`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, fmt.Errorf("select cms page: %w", err)
	}
	return Page{Title: row.Title, HTML: row.Content}, true, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}
