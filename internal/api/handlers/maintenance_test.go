package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
)

type stubReconciler struct {
	report *service.ReconcileReport
	err    error
}

func (s stubReconciler) RunOnce(context.Context) (*service.ReconcileReport, error) {
	return s.report, s.err
}

func TestReconcile(t *testing.T) {
	now := time.Now().UTC()
	report := &service.ReconcileReport{
		StartedAt:    now,
		CompletedAt:  now,
		FilesChecked: 3,
		Issues: []service.ReconcileIssue{
			{Type: service.IssueMissingContent, Namespace: "media", FileID: "x.png", Description: "нет содержимого"},
		},
		Summary: service.ReconcileSummary{Ok: 2, MissingContent: 1},
	}
	h := NewMaintenanceHandler(stubReconciler{report: report}, testLogger())

	rec := httptest.NewRecorder()
	h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/cdn/maintenance/reconcile", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", rec.Code)
	}
	var got service.ReconcileReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Тело ответа не JSON: %v", err)
	}
	if got.FilesChecked != 3 || got.Summary.MissingContent != 1 || len(got.Issues) != 1 {
		t.Errorf("Отчёт: получено %+v", got)
	}
}

func TestReconcile_InProgress(t *testing.T) {
	h := NewMaintenanceHandler(stubReconciler{err: service.ErrReconcileInProgress}, testLogger())

	rec := httptest.NewRecorder()
	h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/cdn/maintenance/reconcile", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("Ожидался 409, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "RECONCILE_IN_PROGRESS" {
		t.Errorf("Код: получен %s", code)
	}
}
