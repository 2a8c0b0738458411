package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
)

// Article repository errors
var (
	ErrArticleNotFound = errors.New("article not found")
)

// Listing bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	excerptLength   = 200
)

// ArticleRepository defines read access to ingested articles
type ArticleRepository interface {
	List(ctx context.Context, params ListArticleParams) ([]ArticleSummary, int, error)
	GetByID(ctx context.Context, id int64) (*Article, error)
}

// ArticleRepo implements ArticleRepository using PostgreSQL
type ArticleRepo struct {
	db *sqlx.DB
}

// NewArticleRepo creates a new ArticleRepo instance
func NewArticleRepo(db *sqlx.DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

// Excerpt returns the first maxLength characters of text, cut at a word
// boundary when one is close enough
func Excerpt(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = excerptLength
	}

	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	truncated := string(runes[:maxLength])
	if lastSpace := strings.LastIndexFunc(truncated, unicode.IsSpace); lastSpace > len(truncated)/2 {
		truncated = truncated[:lastSpace]
	}
	return strings.TrimSpace(truncated) + "..."
}

// NormalizeListParams applies pagination defaults and bounds
func NormalizeListParams(params ListArticleParams) ListArticleParams {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = DefaultPageSize
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}
	params.Search = strings.TrimSpace(params.Search)
	return params
}

// escapeLike makes user input match literally inside a LIKE pattern
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of articles, newest first, plus the total match count.
// Search is substring containment over title and body, case-insensitive.
func (r *ArticleRepo) List(ctx context.Context, params ListArticleParams) ([]ArticleSummary, int, error) {
	params = NormalizeListParams(params)

	baseQuery := `
		FROM articles a
		JOIN agencies ag ON ag.id = a.id_agency
		WHERE 1 = 1
	`
	args := []interface{}{}
	argIdx := 1

	if params.AgencyID != nil {
		baseQuery += fmt.Sprintf(" AND a.id_agency = $%d", argIdx)
		args = append(args, *params.AgencyID)
		argIdx++
	}

	if params.Search != "" {
		baseQuery += fmt.Sprintf(` AND (
			LOWER(a.title) LIKE LOWER($%d) ESCAPE '\' OR
			LOWER(a.full_text) LIKE LOWER($%d) ESCAPE '\'
		)`, argIdx, argIdx)
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	selectQuery := `
		SELECT
			a.id,
			a.title,
			a.slug,
			COALESCE(a.full_text, '') AS full_text,
			a.label,
			a.created_date,
			a.id_agency,
			ag.name AS agency_name
	` + baseQuery + fmt.Sprintf(" ORDER BY a.created_date DESC, a.id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, (params.Page-1)*params.Limit)

	rows, err := r.db.QueryxContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	articles := []ArticleSummary{}
	for rows.Next() {
		var a Article
		if err := rows.StructScan(&a); err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, ArticleSummary{
			ID:          a.ID,
			Title:       a.Title,
			Slug:        a.Slug,
			Excerpt:     Excerpt(a.FullText, excerptLength),
			Label:       a.Label,
			CreatedDate: a.CreatedDate,
			AgencyID:    a.AgencyID,
			AgencyName:  a.AgencyName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating articles: %w", err)
	}

	return articles, totalCount, nil
}

// GetByID retrieves one article with its full text
func (r *ArticleRepo) GetByID(ctx context.Context, id int64) (*Article, error) {
	query := `
		SELECT a.id, a.title, a.slug, COALESCE(a.full_text, '') AS full_text, a.file_name,
			a.label, a.created_date, a.id_agency, ag.name AS agency_name
		FROM articles a
		JOIN agencies ag ON ag.id = a.id_agency
		WHERE a.id = $1
	`

	var article Article
	if err := r.db.GetContext(ctx, &article, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}
