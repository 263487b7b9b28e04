package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"github.com/gin-gonic/gin"
)

func changeDataRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	refs := models.NewReferenceService()
	store := models.NewReportService(refs)
	r := gin.New()
	r.POST("/fincalc/data/change", changeDataHandler(refs, store))
	return r
}

func postChange(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/fincalc/data/change", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChangeDataRejectsParameterlessRequest(t *testing.T) {
	r := changeDataRouter()

	w := postChange(t, r, `{"name":"Salaries","data_type_id":1,"frc_id":2,"sum_in_usd":100}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("a change without an index or item must be rejected, got %d", w.Code)
	}
}

func TestChangeDataRejectsIndexAndItemTogether(t *testing.T) {
	r := changeDataRouter()

	w := postChange(t, r, `{"name":"Salaries","data_type_id":1,"frc_id":2,"index_id":5,"item_id":6}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("a change with both an index and an item must be rejected, got %d", w.Code)
	}
}

func TestChangeDataRejectsMissingRequiredFields(t *testing.T) {
	r := changeDataRouter()

	w := postChange(t, r, `{"name":"Salaries","index_id":5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("a change without data_type_id and frc_id must be rejected, got %d", w.Code)
	}
}
