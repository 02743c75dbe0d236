package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type accessCheckerStub struct {
	studentID    string
	assessmentID string
	now          time.Time
	err          error
}

func (s *accessCheckerStub) CanAccess(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.AccessResult, error) {
	s.studentID, s.assessmentID, s.now = studentID, assessmentID, now
	if s.err != nil {
		return nil, s.err
	}
	return &models.AccessResult{Status: models.AccessAllowed, MinutesRemaining: 30}, nil
}

func newAccessHandler(stub *accessCheckerStub) *AccessHandler {
	return &AccessHandler{service: stub, now: fixedClock}
}

func TestAccessCheckUsesCallerAsStudent(t *testing.T) {
	stub := &accessCheckerStub{}
	router := newRouter(student("student-1"))
	router.GET("/assessments/:id/access", newAccessHandler(stub).Check)

	w := perform(router, http.MethodGet, "/assessments/assess-1/access", nil)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "student-1", stub.studentID)
	assert.Equal(t, "assess-1", stub.assessmentID)
	assert.Equal(t, fixedNow, stub.now)
	var result models.AccessResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, models.AccessAllowed, result.Status)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAccessCheckStudentOverride(t *testing.T) {
	t.Run("admin may check another student", func(t *testing.T) {
		stub := &accessCheckerStub{}
		router := newRouter(admin())
		router.GET("/assessments/:id/access", newAccessHandler(stub).Check)

		w := perform(router, http.MethodGet, "/assessments/assess-1/access?student_id=student-9", nil)
		requireStatus(t, w, http.StatusOK)
		assert.Equal(t, "student-9", stub.studentID)
	})

	t.Run("admin must name a student", func(t *testing.T) {
		router := newRouter(admin())
		router.GET("/assessments/:id/access", newAccessHandler(&accessCheckerStub{}).Check)

		w := perform(router, http.MethodGet, "/assessments/assess-1/access", nil)
		requireStatus(t, w, http.StatusBadRequest)
	})

	t.Run("student cannot check another student", func(t *testing.T) {
		stub := &accessCheckerStub{}
		router := newRouter(student("student-1"))
		router.GET("/assessments/:id/access", newAccessHandler(stub).Check)

		w := perform(router, http.MethodGet, "/assessments/assess-1/access?student_id=student-2", nil)
		requireStatus(t, w, http.StatusForbidden)
		assert.Empty(t, stub.studentID)
	})
}

func TestAccessCheckPropagatesServiceErrors(t *testing.T) {
	stub := &accessCheckerStub{err: appErrors.Clone(appErrors.ErrNotFound, "no progress for assessment")}
	router := newRouter(student("student-1"))
	router.GET("/assessments/:id/access", newAccessHandler(stub).Check)

	w := perform(router, http.MethodGet, "/assessments/assess-1/access", nil)

	requireStatus(t, w, http.StatusNotFound)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAccessCheckRequiresClaims(t *testing.T) {
	router := newRouter(nil)
	router.GET("/assessments/:id/access", newAccessHandler(&accessCheckerStub{}).Check)

	w := perform(router, http.MethodGet, "/assessments/assess-1/access", nil)
	requireStatus(t, w, http.StatusUnauthorized)
}
