package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"parts-tracker/internal/entities"
	"parts-tracker/pkg/database"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/types"
)

const (
	partTable  = "parts"
	partFields = "id, part_id, type, name, subsystem, material, material_thickness, amount, completed_amount, " +
		"notes, onshape_url, category, status, assigned, claimed_date, completed_at, " +
		"file, file_path, model_path, conversion_status, conversion_error, created_at, updated_at"
)

// searchColumns are matched case-insensitively; a part matches if any column does.
var searchColumns = []string{"name", "notes", "subsystem", "assigned", "status", "material", "part_id"}

// partSortExpressions is the whitelist of sortable fields. Both camelCase and
// snake_case spellings are accepted.
var partSortExpressions = map[string]string{
	"name":       "LOWER(COALESCE(NULLIF(name, ''), part_id))",
	"partId":     "LOWER(COALESCE(NULLIF(part_id, ''), name))",
	"part_id":    "LOWER(COALESCE(NULLIF(part_id, ''), name))",
	"assigned":   "LOWER(COALESCE(assigned, ''))",
	"status":     "LOWER(status)",
	"subsystem":  "LOWER(subsystem)",
	"material":   "LOWER(material)",
	"createdAt":  "created_at",
	"created_at": "created_at",
	"amount":     "amount",
}

// cncPriority orders active work first, then reviewed, then everything else.
const cncPriority = "CASE WHEN status IN ('In Progress', 'Already Started') THEN 0 WHEN status = 'Reviewed' THEN 1 ELSE 2 END"

type dbPart struct {
	ID                int64
	PartID            string
	Type              string
	Name              string
	Subsystem         string
	Material          string
	MaterialThickness sql.NullString
	Amount            int
	CompletedAmount   sql.NullInt64
	Notes             string
	OnshapeURL        sql.NullString
	Category          string
	Status            string
	Assigned          sql.NullString
	ClaimedDate       sql.NullTime
	CompletedAt       sql.NullTime
	File              sql.NullString
	FilePath          sql.NullString
	ModelPath         sql.NullString
	ConversionStatus  string
	ConversionError   sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (db *dbPart) toEntity() entities.Part {
	p := entities.Part{
		ID:                db.ID,
		PartID:            db.PartID,
		Type:              entities.PartType(db.Type),
		Name:              db.Name,
		Subsystem:         db.Subsystem,
		Material:          db.Material,
		MaterialThickness: nullStringPtr(db.MaterialThickness),
		Amount:            db.Amount,
		Notes:             db.Notes,
		OnshapeURL:        nullStringPtr(db.OnshapeURL),
		Category:          entities.Category(db.Category),
		Status:            entities.Status(db.Status),
		Assigned:          nullStringPtr(db.Assigned),
		File:              nullStringPtr(db.File),
		FilePath:          nullStringPtr(db.FilePath),
		ModelPath:         nullStringPtr(db.ModelPath),
		ConversionStatus:  entities.ConversionStatus(db.ConversionStatus),
		ConversionError:   nullStringPtr(db.ConversionError),
		CreatedAt:         db.CreatedAt,
		UpdatedAt:         db.UpdatedAt,
	}
	if db.CompletedAmount.Valid {
		v := int(db.CompletedAmount.Int64)
		p.CompletedAmount = &v
	}
	if db.ClaimedDate.Valid {
		v := db.ClaimedDate.Time
		p.ClaimedDate = &v
	}
	if db.CompletedAt.Valid {
		v := db.CompletedAt.Time
		p.CompletedAt = &v
	}
	return p
}

type PartRepositoryInterface interface {
	Create(ctx context.Context, tx *sql.Tx, p entities.Part) (int64, error)
	FindByID(ctx context.Context, tx *sql.Tx, id int64, forUpdate bool) (*entities.Part, error)
	FindByPartID(ctx context.Context, tx *sql.Tx, partID string) (*entities.Part, error)
	Update(ctx context.Context, tx *sql.Tx, p entities.Part) error
	Delete(ctx context.Context, tx *sql.Tx, id int64) error
	DeleteAll(ctx context.Context, tx *sql.Tx) (int64, error)
	List(ctx context.Context, filter types.PartFilter) ([]entities.Part, uint64, error)
	StoredFiles(ctx context.Context, tx *sql.Tx) ([]string, error)
	ListByConversionStatus(ctx context.Context, status entities.ConversionStatus) ([]entities.Part, error)
	Stats(ctx context.Context) (*entities.PartStats, error)
	Leaderboard(ctx context.Context, limit int) ([]entities.LeaderboardEntry, error)
}

type partRepository struct {
	db     *database.DB
	logger *zap.Logger
}

func NewPartRepository(db *database.DB, logger *zap.Logger) PartRepositoryInterface {
	return &partRepository{db: db, logger: logger}
}

func (r *partRepository) getQuerier(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.db.DB
}

func (r *partRepository) scanRow(row rowScanner) (*entities.Part, error) {
	var d dbPart
	err := row.Scan(
		&d.ID, &d.PartID, &d.Type, &d.Name, &d.Subsystem, &d.Material, &d.MaterialThickness,
		&d.Amount, &d.CompletedAmount, &d.Notes, &d.OnshapeURL, &d.Category, &d.Status,
		&d.Assigned, &d.ClaimedDate, &d.CompletedAt, &d.File, &d.FilePath, &d.ModelPath,
		&d.ConversionStatus, &d.ConversionError, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan parts: %w", err)
	}
	p := d.toEntity()
	return &p, nil
}

func (r *partRepository) findOne(ctx context.Context, tx *sql.Tx, where sq.Eq, forUpdate bool) (*entities.Part, error) {
	builder := r.db.Builder().Select(partFields).From(partTable).Where(where)
	if forUpdate && r.db.Dialect == database.DialectPostgres {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build findOne: %w", err)
	}
	return r.scanRow(r.getQuerier(tx).QueryRowContext(ctx, query, args...))
}

func (r *partRepository) FindByID(ctx context.Context, tx *sql.Tx, id int64, forUpdate bool) (*entities.Part, error) {
	return r.findOne(ctx, tx, sq.Eq{"id": id}, forUpdate)
}

func (r *partRepository) FindByPartID(ctx context.Context, tx *sql.Tx, partID string) (*entities.Part, error) {
	return r.findOne(ctx, tx, sq.Eq{"part_id": partID}, false)
}

func (r *partRepository) Create(ctx context.Context, tx *sql.Tx, p entities.Part) (int64, error) {
	query, args, err := r.db.Builder().Insert(partTable).
		Columns("part_id", "type", "name", "subsystem", "material", "material_thickness", "amount", "completed_amount",
			"notes", "onshape_url", "category", "status", "assigned", "claimed_date", "completed_at",
			"file", "file_path", "model_path", "conversion_status", "conversion_error", "created_at", "updated_at").
		Values(p.PartID, string(p.Type), p.Name, p.Subsystem, p.Material, p.MaterialThickness, p.Amount, p.CompletedAmount,
			p.Notes, p.OnshapeURL, string(p.Category), string(p.Status), p.Assigned, p.ClaimedDate, p.CompletedAt,
			p.File, p.FilePath, p.ModelPath, string(p.ConversionStatus), p.ConversionError, p.CreatedAt, p.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build Create: %w", err)
	}

	var id int64
	if err := r.getQuerier(tx).QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("part %q: %w", p.PartID, apperrors.ErrDuplicatePartID)
		}
		return 0, fmt.Errorf("insert parts: %w", err)
	}
	return id, nil
}

// Update writes every mutable column. part_id and type are never touched.
func (r *partRepository) Update(ctx context.Context, tx *sql.Tx, p entities.Part) error {
	query, args, err := r.db.Builder().Update(partTable).
		Set("name", p.Name).
		Set("subsystem", p.Subsystem).
		Set("material", p.Material).
		Set("material_thickness", p.MaterialThickness).
		Set("amount", p.Amount).
		Set("completed_amount", p.CompletedAmount).
		Set("notes", p.Notes).
		Set("onshape_url", p.OnshapeURL).
		Set("category", string(p.Category)).
		Set("status", string(p.Status)).
		Set("assigned", p.Assigned).
		Set("claimed_date", p.ClaimedDate).
		Set("completed_at", p.CompletedAt).
		Set("file", p.File).
		Set("file_path", p.FilePath).
		Set("model_path", p.ModelPath).
		Set("conversion_status", string(p.ConversionStatus)).
		Set("conversion_error", p.ConversionError).
		Set("updated_at", p.UpdatedAt).
		Where(sq.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Update: %w", err)
	}

	result, err := r.getQuerier(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update parts: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *partRepository) Delete(ctx context.Context, tx *sql.Tx, id int64) error {
	query, args, err := r.db.Builder().Delete(partTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build Delete: %w", err)
	}
	result, err := r.getQuerier(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete parts: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *partRepository) DeleteAll(ctx context.Context, tx *sql.Tx) (int64, error) {
	query, args, err := r.db.Builder().Delete(partTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build DeleteAll: %w", err)
	}
	result, err := r.getQuerier(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete all parts: %w", err)
	}
	return result.RowsAffected()
}

// StoredFiles returns every blob key referenced by any part.
func (r *partRepository) StoredFiles(ctx context.Context, tx *sql.Tx) ([]string, error) {
	query, args, err := r.db.Builder().Select("file_path", "model_path").From(partTable).
		Where(sq.Or{sq.NotEq{"file_path": nil}, sq.NotEq{"model_path": nil}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build StoredFiles: %w", err)
	}
	rows, err := r.getQuerier(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stored files: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var filePath, modelPath sql.NullString
		if err := rows.Scan(&filePath, &modelPath); err != nil {
			return nil, err
		}
		if filePath.Valid {
			keys = append(keys, filePath.String)
		}
		if modelPath.Valid {
			keys = append(keys, modelPath.String)
		}
	}
	return keys, rows.Err()
}

// ListByConversionStatus is used at startup to requeue conversions that
// were pending when the process stopped.
func (r *partRepository) ListByConversionStatus(ctx context.Context, status entities.ConversionStatus) ([]entities.Part, error) {
	query, args, err := r.db.Builder().Select(partFields).From(partTable).
		Where(sq.Eq{"conversion_status": string(status)}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListByConversionStatus: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select parts by conversion status: %w", err)
	}
	defer rows.Close()

	var parts []entities.Part
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *p)
	}
	return parts, rows.Err()
}

func (r *partRepository) applyWhere(builder sq.SelectBuilder, filter types.PartFilter) sq.SelectBuilder {
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		or := sq.Or{}
		for _, col := range searchColumns {
			or = append(or, sq.Expr("LOWER(COALESCE("+col+", '')) LIKE ? ESCAPE '\\'", pattern))
		}
		builder = builder.Where(or)
	}
	return builder
}

// List runs a COUNT and a page SELECT with the same WHERE clause.
func (r *partRepository) List(ctx context.Context, filter types.PartFilter) ([]entities.Part, uint64, error) {
	countQuery, countArgs, err := r.applyWhere(r.db.Builder().Select("COUNT(id)").From(partTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total uint64
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count parts: %w", err)
	}
	if total == 0 || uint64(filter.Offset) >= total {
		return []entities.Part{}, total, nil
	}

	selectBuilder := r.applyWhere(r.db.Builder().Select(partFields).From(partTable), filter)
	if expr, ok := partSortExpressions[filter.SortBy]; ok {
		dir := "ASC"
		if strings.EqualFold(filter.SortOrder, "desc") {
			dir = "DESC"
		}
		selectBuilder = selectBuilder.OrderBy(expr+" "+dir, "id ASC")
	} else if filter.Category == string(entities.CategoryCNC) {
		selectBuilder = selectBuilder.OrderBy(cncPriority, "id ASC")
	} else {
		selectBuilder = selectBuilder.OrderBy("id ASC")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = types.DefaultLimit
	}
	if limit > types.MaxLimit {
		limit = types.MaxLimit
	}
	selectBuilder = selectBuilder.Limit(uint64(limit)).Offset(uint64(max(filter.Offset, 0)))

	query, args, err := selectBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select parts: %w", err)
	}
	defer rows.Close()

	parts := make([]entities.Part, 0, limit)
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		parts = append(parts, *p)
	}
	return parts, total, rows.Err()
}

func (r *partRepository) Stats(ctx context.Context) (*entities.PartStats, error) {
	stats := &entities.PartStats{
		ByCategory: make(map[entities.Category]int64, len(entities.Categories)),
		ByType:     make(map[entities.PartType]int64, len(entities.PartTypes)),
	}
	for _, c := range entities.Categories {
		stats.ByCategory[c] = 0
	}
	for _, t := range entities.PartTypes {
		stats.ByType[t] = 0
	}

	if err := r.groupCount(ctx, "category", func(key string, n int64) {
		stats.ByCategory[entities.Category(key)] = n
		stats.Total += n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "type", func(key string, n int64) {
		stats.ByType[entities.PartType(key)] = n
	}); err != nil {
		return nil, err
	}

	query, args, err := r.db.Builder().Select("COUNT(id)").From(partTable).
		Where(sq.NotEq{"assigned": nil}).
		Where(sq.NotEq{"category": string(entities.CategoryCompleted)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assigned count: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Assigned); err != nil {
		return nil, fmt.Errorf("count assigned: %w", err)
	}
	return stats, nil
}

func (r *partRepository) groupCount(ctx context.Context, column string, fn func(key string, n int64)) error {
	query, args, err := r.db.Builder().Select(column, "COUNT(id)").From(partTable).GroupBy(column).ToSql()
	if err != nil {
		return fmt.Errorf("build group count: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("group count by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}

func (r *partRepository) Leaderboard(ctx context.Context, limit int) ([]entities.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := r.db.Builder().Select("assigned", "COUNT(id) AS completed").From(partTable).
		Where(sq.Eq{"category": string(entities.CategoryCompleted)}).
		Where(sq.NotEq{"assigned": nil}).
		GroupBy("assigned").
		OrderBy("completed DESC", "assigned ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build leaderboard: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]entities.LeaderboardEntry, 0)
	for rows.Next() {
		var e entities.LeaderboardEntry
		if err := rows.Scan(&e.Assigned, &e.Completed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
