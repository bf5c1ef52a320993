package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotReusable is returned when an enroll upsert finds the pair in a status
// that cannot be re-enrolled from.
var ErrNotReusable = errors.New("enrollment is active")

// ErrUniqueViolation signals a write rejected by a (student_id, course_id) constraint.
var ErrUniqueViolation = errors.New("unique constraint violated")

const pqUniqueViolation = "23505"

// translate maps driver errors onto repository sentinels, leaving others untouched.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errors.Join(ErrUniqueViolation, err)
	}
	return err
}
