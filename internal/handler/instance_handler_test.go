package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

type instanceManagerStub struct {
	baseID  string
	periods int
}

func (s *instanceManagerStub) ListInstances(ctx context.Context, baseID string) ([]models.AssessmentInstance, error) {
	s.baseID = baseID
	return []models.AssessmentInstance{{ID: baseID + "-A"}, {ID: baseID + "-B"}}, nil
}

func (s *instanceManagerStub) ValidateAssessment(ctx context.Context, assessmentID string, periods int) (models.ShuffleValidation, error) {
	s.baseID, s.periods = assessmentID, periods
	return models.ShuffleValidation{}, nil
}

func (s *instanceManagerStub) DeleteInstances(ctx context.Context, baseID string) (int64, error) {
	s.baseID = baseID
	return 3, nil
}

func instanceRoutes(stub *instanceManagerStub) http.Handler {
	handler := &InstanceHandler{service: stub}
	router := newRouter(teacher("teacher-1"))
	router.GET("/assessments/:id/instances", handler.List)
	router.GET("/assessments/:id/instances/validation", handler.Validate)
	router.DELETE("/assessments/:id/instances", handler.Delete)
	return router
}

func TestInstanceEndpoints(t *testing.T) {
	stub := &instanceManagerStub{}
	router := instanceRoutes(stub)

	w := perform(router, http.MethodGet, "/assessments/assess-1/instances", nil)
	requireStatus(t, w, http.StatusOK)
	var items []models.AssessmentInstance
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &items))
	assert.Len(t, items, 2)

	w = perform(router, http.MethodGet, "/assessments/assess-1/instances/validation?periods=3", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 3, stub.periods)

	w = perform(router, http.MethodGet, "/assessments/assess-1/instances/validation?periods=many", nil)
	requireStatus(t, w, http.StatusBadRequest)

	w = perform(router, http.MethodDelete, "/assessments/assess-2/instances", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "assess-2", stub.baseID)
	assert.JSONEq(t, `{"deleted":3}`, string(decodeEnvelope(t, w).Data))
}
