package repository

import (
	"errors"

	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...any) error
}

const (
	pqUniqueViolation    = "23505"
	pqExclusionViolation = "23P01"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation reports whether err came from a unique index.
func IsUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

func isExclusionViolation(err error) bool {
	return pqCode(err) == pqExclusionViolation
}
