package storage

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/models"
)

// BookmarkRepository handles bookmark persistence
type BookmarkRepository struct {
	db *PostgresDB
}

// NewBookmarkRepository creates a new bookmark repository
func NewBookmarkRepository(db *PostgresDB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

const bookmarkColumns = `
	id, case_number, notes, is_green_industry, industry_type, created_at, updated_at`

// Create adds a bookmark for a case
func (r *BookmarkRepository) Create(ctx context.Context, bookmark *models.Bookmark) error {
	query := `
		INSERT INTO bookmarks (case_number, notes, is_green_industry, industry_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		bookmark.CaseNumber,
		bookmark.Notes,
		bookmark.IsGreenIndustry,
		bookmark.IndustryType,
	).Scan(&bookmark.ID, &bookmark.CreatedAt)
	if err != nil {
		return errors.NewPersistenceError("create bookmark", err)
	}

	return nil
}

// Get retrieves a bookmark by id
func (r *BookmarkRepository) Get(ctx context.Context, id int) (*models.Bookmark, error) {
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE id = $1`

	bookmark, err := scanBookmark(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("bookmark", strconv.Itoa(id))
		}
		return nil, errors.NewPersistenceError("get bookmark", err)
	}

	return bookmark, nil
}

// GetByCaseNumber retrieves the bookmark for a case, if any
func (r *BookmarkRepository) GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Bookmark, error) {
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE case_number = $1`

	bookmark, err := scanBookmark(r.db.Pool().QueryRow(ctx, query, caseNumber))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("bookmark", caseNumber)
		}
		return nil, errors.NewPersistenceError("get bookmark by case number", err)
	}

	return bookmark, nil
}

// List retrieves all bookmarks, newest first
func (r *BookmarkRepository) List(ctx context.Context) ([]*models.Bookmark, error) {
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, errors.NewPersistenceError("list bookmarks", err)
	}
	defer rows.Close()

	var bookmarks []*models.Bookmark
	for rows.Next() {
		bookmark, err := scanBookmark(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan bookmark", err)
		}
		bookmarks = append(bookmarks, bookmark)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("iterate bookmarks", err)
	}

	return bookmarks, nil
}

// Update modifies a bookmark's annotations
func (r *BookmarkRepository) Update(ctx context.Context, bookmark *models.Bookmark) error {
	query := `
		UPDATE bookmarks
		SET notes = $2, is_green_industry = $3, industry_type = $4, updated_at = now()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		bookmark.ID,
		bookmark.Notes,
		bookmark.IsGreenIndustry,
		bookmark.IndustryType,
	)
	if err != nil {
		return errors.NewPersistenceError("update bookmark", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("bookmark", strconv.Itoa(bookmark.ID))
	}

	return nil
}

// Delete removes a bookmark
func (r *BookmarkRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM bookmarks WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return errors.NewPersistenceError("delete bookmark", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("bookmark", strconv.Itoa(id))
	}

	return nil
}

func scanBookmark(row caseScanner) (*models.Bookmark, error) {
	var bookmark models.Bookmark
	err := row.Scan(
		&bookmark.ID,
		&bookmark.CaseNumber,
		&bookmark.Notes,
		&bookmark.IsGreenIndustry,
		&bookmark.IndustryType,
		&bookmark.CreatedAt,
		&bookmark.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bookmark, nil
}
