package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
)

var (
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("aggregate validation")
	// ErrIntegrity indicates a caller bug against a store invariant.
	ErrIntegrity = errors.New("aggregate integrity violation")
	// ErrConflict indicates a uniqueness race or a failed compare-and-set.
	ErrConflict = errors.New("aggregate conflict")
	// ErrRetryable indicates transient retryable failure.
	ErrRetryable = errors.New("aggregate retryable")
)

// ValidationError tags an error as validation failure.
func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

// IntegrityError tags an error as integrity violation.
func IntegrityError(msg string) error {
	return errors.Join(ErrIntegrity, errors.New(strings.TrimSpace(msg)))
}

// ConflictError tags an error as conflict failure.
func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

// RetryableError tags an error as retryable failure.
func RetryableError(msg string) error {
	return errors.Join(ErrRetryable, errors.New(strings.TrimSpace(msg)))
}

var sentinelCodes = []struct {
	err  error
	code domainagg.ErrorCode
}{
	{ErrValidation, domainagg.CodeValidation},
	{ErrIntegrity, domainagg.CodeIntegrityViolation},
	{ErrConflict, domainagg.CodeConflict},
	{ErrRetryable, domainagg.CodeRetryable},
	{gorm.ErrRecordNotFound, domainagg.CodeNotFound},
	{gorm.ErrDuplicatedKey, domainagg.CodeConflict},
	{gorm.ErrForeignKeyViolated, domainagg.CodeIntegrityViolation},
	{gorm.ErrCheckConstraintViolated, domainagg.CodeIntegrityViolation},
	{context.Canceled, domainagg.CodeRetryable},
	{context.DeadlineExceeded, domainagg.CodeRetryable},
}

// Postgres SQLSTATEs: unique, foreign key, check, serialization, deadlock, lock not available.
var pgCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,
	"23503": domainagg.CodeIntegrityViolation,
	"23514": domainagg.CodeIntegrityViolation,
	"40001": domainagg.CodeRetryable,
	"40P01": domainagg.CodeRetryable,
	"55P03": domainagg.CodeRetryable,
}

// Driver message fragments, mostly for sqlite which has no typed errors through gorm.
var messageCodes = []struct {
	needle string
	code   domainagg.ErrorCode
}{
	{"duplicate key", domainagg.CodeConflict},
	{"unique constraint failed", domainagg.CodeConflict},
	{"already exists", domainagg.CodeConflict},
	{"foreign key constraint", domainagg.CodeIntegrityViolation},
	{"check constraint", domainagg.CodeIntegrityViolation},
	{"deadlock", domainagg.CodeRetryable},
	{"serialization", domainagg.CodeRetryable},
	{"database is locked", domainagg.CodeRetryable},
	{"timeout", domainagg.CodeRetryable},
	{"temporar", domainagg.CodeRetryable},
}

// ExperimentVersionConstraint is the partial unique index allowing one experimental
// version per (family, experiment).
const ExperimentVersionConstraint = "uq_documents_experiment_version"

// guardedConstraints are unique indexes that enforce a store invariant rather than settle a
// number race, so a duplicate against them is an integrity violation. sqlite names the
// indexed columns instead of the index.
var guardedConstraints = []struct {
	name    string
	columns string
}{
	{ExperimentVersionConstraint, "documents.source_document_id, documents.experiment_id"},
}

// MapError maps infrastructure and tagged failures onto aggregate error codes.
// Errors that already carry a code pass through unchanged.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if domainagg.CodeOf(err) != "" {
		return err
	}
	if name := guardedConstraint(err); name != "" {
		return &domainagg.Error{
			Code:    domainagg.CodeIntegrityViolation,
			Op:      strings.TrimSpace(op),
			Message: err.Error(),
			Cause:   err,
			Details: map[string]any{"constraint": name},
		}
	}
	return domainagg.Wrap(classifyStoreError(err), op, err)
}

func guardedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, c := range guardedConstraints {
			if pgErr.ConstraintName == c.name {
				return c.name
			}
		}
		return ""
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique constraint failed") {
		return ""
	}
	for _, c := range guardedConstraints {
		if strings.Contains(msg, c.columns) {
			return c.name
		}
	}
	return ""
}

// violatesConstraint reports an integrity violation raised by the named guarded index.
func violatesConstraint(err error, name string) bool {
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		return false
	}
	got, _ := domainagg.DetailsOf(err)["constraint"].(string)
	return got == name
}

func classifyStoreError(err error) domainagg.ErrorCode {
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return code
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range messageCodes {
		if strings.Contains(msg, m.needle) {
			return m.code
		}
	}
	return domainagg.CodeInternal
}

// isUniqueViolation reports a raw or mapped uniqueness failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return domainagg.IsCode(MapError("aggregate.unique", err), domainagg.CodeConflict)
}

func notFound(op, what string, id any) error {
	return domainagg.NewErrorWithDetails(domainagg.CodeNotFound, op, what+" not found", map[string]any{"id": id})
}
