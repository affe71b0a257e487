package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-results-api/internal/middleware"
	"github.com/noah-isme/school-results-api/internal/models"
	"github.com/noah-isme/school-results-api/internal/service"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

func buildTestRouter() (*gin.Engine, *resultServiceMock) {
	gin.SetMode(gin.TestMode)
	results := &resultServiceMock{}
	tokens := tokenStub{
		"admin":   {UserID: "admin-1", Role: models.RoleAdmin},
		"teacher": {UserID: "teacher-1", Role: models.RoleTeacher},
		"student": {UserID: "student-1", Role: models.RoleStudent},
	}
	r := gin.New()
	RegisterRoutes(r, Handlers{
		Periods:        NewPeriodHandler(&periodServiceMock{}),
		Assessments:    NewAssessmentHandler(&assessmentServiceMock{}),
		Grades:         NewGradeHandler(&gradeServiceMock{}),
		GradingSystems: NewGradingSystemHandler(&gradingSystemServiceMock{}),
		Results:        NewResultHandler(results),
		Exports:        NewExportHandler(&exportServiceMock{}),
		Metrics:        NewMetricsHandler(service.NewMetricsService()),
	}, RouterConfig{APIPrefix: "/api/v1", Auth: middleware.JWT(tokens)})
	return r, results
}

func perform(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterAccessControl(t *testing.T) {
	r, results := buildTestRouter()

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/api/v1/academic-terms", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/v1/academic-terms", "student").Code)

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodDelete, "/api/v1/academic-years/year-1", "teacher").Code)
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodDelete, "/api/v1/academic-years/year-1", "admin").Code)

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/api/v1/assessments", "student").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/v1/assessments", "teacher").Code)

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/api/v1/results/sections/section-1", "student").Code)
	w := perform(r, http.MethodGet, "/api/v1/results/students/student-1?sectionId=section-1", "student")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-1", results.studentID)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/api/v1/results/students/student-2?sectionId=section-1", "student").Code)

	// Bad signed links are rejected by the service, not by the JWT layer.
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/api/v1/export/bogus", "").Code)
}

func TestRouterGradingSystemResolveBeforeID(t *testing.T) {
	r, _ := buildTestRouter()
	w := perform(r, http.MethodGet, "/api/v1/grading-systems/resolve?score=55", "teacher")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"grade":"A"`)
}
