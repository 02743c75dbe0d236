package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert reschedule: %w", &pq.Error{Code: "23505", Constraint: "uq_active_reschedule"})
	fk := &pq.Error{Code: "23503"}
	deadlock := &pq.Error{Code: "40P01"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.True(t, IsRetryable(deadlock))
	assert.False(t, IsRetryable(errors.New("boom")))
}
