package factoryevent

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lineflow/scheduler/internal/domain"
	"github.com/lineflow/scheduler/internal/gateway"
	"github.com/lineflow/scheduler/internal/idempotency"
	"github.com/lineflow/scheduler/internal/operatorchannel"
	"github.com/lineflow/scheduler/internal/orchestrator"
	"github.com/lineflow/scheduler/internal/policy"
)

func buildMultipart(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s): %v", k, err)
		}
	}
	part, err := w.CreateFormFile("image", "failure.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

func fixedNow() time.Time { return time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC) }

func seeded() (*gateway.MemoryGateway, string) {
	gw := gateway.NewMemoryGateway()
	gw.SeedProduct(domain.Product{
		ID: "WIDGET", Name: "Widget",
		BOM: []domain.BOMPhase{{Type: domain.PhaseSMT, DurationPerUnit: 1}, {Type: domain.PhaseTest, DurationPerUnit: 1}},
	})
	gw.SeedSalesOrder(domain.SalesOrder{
		ID: "SO-1", ProductID: "WIDGET", Quantity: 5, Priority: 1,
		Deadline: fixedNow().Add(48 * time.Hour), Status: domain.SalesOrderAccepted,
	})
	poID, _ := gw.CreateProductionOrder(context.Background(), gateway.NewProductionOrder{
		SalesOrderID: "SO-1", ProductID: "WIDGET", Quantity: 5,
		StartsAt: fixedNow().Add(-time.Hour), EndsAt: fixedNow().Add(time.Hour),
	})
	gw.ScheduleProductionOrder(context.Background(), poID)
	gw.ConfirmProductionOrder(context.Background(), poID)
	return gw, poID
}

func TestServeHTTPResolvesExplicitPOIDAndNotifies(t *testing.T) {
	gw, poID := seeded()
	gw.UpdatePOWindow(context.Background(), poID, fixedNow().Add(-time.Hour), fixedNow().Add(time.Hour))
	channel := operatorchannel.NewMemory()
	o := orchestrator.New(gw, policy.CustomerRanks{})
	in := New(gw, o, channel, NewMemoryIncidentStore(), 100, 10)
	in.now = fixedNow

	body, contentType := buildMultipart(t, map[string]string{"description": "smoke detected", "po_id": poID}, []byte("fakejpeg"))
	req := httptest.NewRequest(http.MethodPost, "/factory-events", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	in.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(channel.Failures) != 1 {
		t.Fatalf("expected one factory-failure notification, got %d", len(channel.Failures))
	}
	if channel.Failures[0].ProductionOrderID != poID {
		t.Fatalf("expected notification for %s, got %s", poID, channel.Failures[0].ProductionOrderID)
	}
}

func TestServeHTTPRejectsUnresolvableEvent(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	channel := operatorchannel.NewMemory()
	o := orchestrator.New(gw, policy.CustomerRanks{})
	in := New(gw, o, channel, NewMemoryIncidentStore(), 100, 10)

	body, contentType := buildMultipart(t, nil, []byte("fakejpeg"))
	req := httptest.NewRequest(http.MethodPost, "/factory-events", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	in.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unresolvable event, got %d", w.Code)
	}
	if len(channel.Failures) != 0 {
		t.Fatalf("expected no notification for unresolvable event, got %d", len(channel.Failures))
	}
}

func TestServeHTTPEnforcesRateLimit(t *testing.T) {
	gw, poID := seeded()
	channel := operatorchannel.NewMemory()
	o := orchestrator.New(gw, policy.CustomerRanks{})
	in := New(gw, o, channel, NewMemoryIncidentStore(), 0.001, 1)

	for i := 0; i < 2; i++ {
		body, contentType := buildMultipart(t, map[string]string{"po_id": poID}, []byte("fakejpeg"))
		req := httptest.NewRequest(http.MethodPost, "/factory-events", body)
		req.Header.Set("Content-Type", contentType)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		in.ServeHTTP(w, req)
		if i == 1 && w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected second request to be rate limited, got %d", w.Code)
		}
	}
}

func TestServeHTTPReplaysCachedResponseForRepeatedIdempotencyKey(t *testing.T) {
	gw, poID := seeded()
	channel := operatorchannel.NewMemory()
	o := orchestrator.New(gw, policy.CustomerRanks{})
	in := New(gw, o, channel, NewMemoryIncidentStore(), 100, 10).
		WithIdempotencyStore(idempotency.NewStore(nil, time.Hour))

	send := func() *httptest.ResponseRecorder {
		body, contentType := buildMultipart(t, map[string]string{"po_id": poID}, []byte("fakejpeg"))
		req := httptest.NewRequest(http.MethodPost, "/factory-events", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Idempotency-Key", "retry-1")
		w := httptest.NewRecorder()
		in.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on first submission, got %d: %s", first.Code, first.Body.String())
	}
	if len(channel.Failures) != 1 {
		t.Fatalf("expected one notification after first submission, got %d", len(channel.Failures))
	}

	second := send()
	if second.Code != http.StatusAccepted {
		t.Fatalf("expected 202 replay on second submission, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected replayed body to match first response: %q vs %q", second.Body.String(), first.Body.String())
	}
	if len(channel.Failures) != 1 {
		t.Fatalf("expected replay to skip re-notifying operator channel, got %d notifications", len(channel.Failures))
	}
}

func TestCancelOrderMarksCancelledAndRecomputes(t *testing.T) {
	gw, poID := seeded()
	channel := operatorchannel.NewMemory()
	o := orchestrator.New(gw, policy.CustomerRanks{})
	in := New(gw, o, channel, NewMemoryIncidentStore(), 100, 10)

	ctx := context.Background()
	if _, err := in.CancelOrder(ctx, "SO-1", poID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	so, err := gw.ListSalesOrders(ctx, domain.SalesOrderCancelled)
	if err != nil {
		t.Fatalf("ListSalesOrders: %v", err)
	}
	if len(so) != 1 || so[0].ID != "SO-1" {
		t.Fatalf("expected SO-1 cancelled, got %+v", so)
	}
}

func TestRestartOrderDeletesPOAndRecomputes(t *testing.T) {
	gw, poID := seeded()
	channel := operatorchannel.NewMemory()
	o := orchestrator.New(gw, policy.CustomerRanks{})
	in := New(gw, o, channel, NewMemoryIncidentStore(), 100, 10)

	ctx := context.Background()
	if _, err := in.RestartOrder(ctx, "SO-1", poID); err != nil {
		t.Fatalf("RestartOrder: %v", err)
	}
	if _, err := gw.GetProductionOrder(ctx, poID); err == nil {
		t.Fatalf("expected failed PO %s to be deleted", poID)
	}
}
