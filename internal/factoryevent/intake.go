// Package factoryevent implements the Factory Event Intake boundary
// (spec.md §4.6): one HTTP endpoint that accepts a failure event carrying
// an image, resolves it to the currently-executing production order, and
// pushes a factory-failure notification with two recovery actions. Grounded
// on control_plane/incident/capture.go's gather-then-report shape and
// control_plane/api_incidents.go's plain net/http handler style.
package factoryevent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lineflow/scheduler/internal/domain"
	lferrors "github.com/lineflow/scheduler/internal/errors"
	"github.com/lineflow/scheduler/internal/gateway"
	"github.com/lineflow/scheduler/internal/idempotency"
	"github.com/lineflow/scheduler/internal/observability"
	"github.com/lineflow/scheduler/internal/operatorchannel"
	"github.com/lineflow/scheduler/internal/orchestrator"
)

// idempotencyHeader carries the client-supplied key that lets a retried
// submission of the same failure event replay the first response instead of
// triggering a second recovery action.
const idempotencyHeader = "Idempotency-Key"

// IncidentStore persists an inbound failure image, content-addressed by the
// hash of its bytes, so the notification and any later replay reference it
// by id rather than re-sending bytes (SPEC_FULL.md §4.6 "[NEW] Image
// storage").
type IncidentStore interface {
	Put(ctx context.Context, data []byte) (id string, err error)
	Get(ctx context.Context, id string) ([]byte, error)
}

// MemoryIncidentStore is an in-process, content-addressed IncidentStore.
type MemoryIncidentStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryIncidentStore() *MemoryIncidentStore {
	return &MemoryIncidentStore{blobs: make(map[string][]byte)}
}

func (s *MemoryIncidentStore) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = data
	return id, nil
}

func (s *MemoryIncidentStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("factoryevent: unknown incident %s", id)
	}
	return data, nil
}

var _ IncidentStore = (*MemoryIncidentStore)(nil)

// maxImageBytes bounds the multipart form size this endpoint will parse.
const maxImageBytes = 16 << 20 // 16 MiB

// Intake is the HTTP handler plus its collaborators.
type Intake struct {
	gw           gateway.Gateway
	orchestrator *orchestrator.Orchestrator
	channel      operatorchannel.Channel
	incidents    IncidentStore
	now          func() time.Time

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	ratePerS  float64
	burst     int

	idempotent *idempotency.Store

	mu         sync.Mutex
	lastPolicy domain.Policy
}

// WithIdempotencyStore enables idempotency-key replay: a request carrying an
// Idempotency-Key header already seen within the store's TTL gets the cached
// response back instead of being processed again.
func (in *Intake) WithIdempotencyStore(store *idempotency.Store) *Intake {
	in.idempotent = store
	return in
}

// New builds an Intake. ratePerSecond/burst configure the per-source-IP
// token bucket (SPEC_FULL.md §4.6 "[NEW] Rate limiting").
func New(gw gateway.Gateway, o *orchestrator.Orchestrator, channel operatorchannel.Channel, incidents IncidentStore, ratePerSecond float64, burst int) *Intake {
	if ratePerSecond <= 0 {
		ratePerSecond = 1.0
	}
	if burst <= 0 {
		burst = 1
	}
	return &Intake{
		gw:           gw,
		orchestrator: o,
		channel:      channel,
		incidents:    incidents,
		now:          time.Now,
		limiters:     make(map[string]*rate.Limiter),
		ratePerS:     ratePerSecond,
		burst:        burst,
		lastPolicy:   domain.PolicyEDF,
	}
}

func (in *Intake) limiterFor(key string) *rate.Limiter {
	in.limiterMu.Lock()
	defer in.limiterMu.Unlock()
	l, ok := in.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(in.ratePerS), in.burst)
		in.limiters[key] = l
	}
	return l
}

func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ServeHTTP implements the factory-failure POST endpoint described in
// spec.md §4.6 and §6.
func (in *Intake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := sourceIP(r)
	if !in.limiterFor(ip).Allow() {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	idemKey := r.Header.Get(idempotencyHeader)
	if idemKey != "" && in.idempotent != nil {
		if cached, ok := in.idempotent.Get(r.Context(), idemKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.StatusCode)
			w.Write(cached.Body)
			return
		}
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		http.Error(w, fmt.Sprintf("invalid multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	imgBytes, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		http.Error(w, "failed to read image", http.StatusBadRequest)
		return
	}

	description := r.FormValue("description")
	explicitPOID := r.FormValue("po_id")

	ctx := r.Context()
	po, err := in.resolveProductionOrder(ctx, explicitPOID)
	if err != nil {
		observability.FactoryEventsIngested.WithLabelValues("unresolved").Inc()
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	incidentID, err := in.incidents.Put(ctx, imgBytes)
	if err != nil {
		log.Printf("factoryevent: failed to store incident image: %v", err)
	}

	if err := in.channel.SendFactoryFailure(ctx, operatorchannel.FactoryFailureMessage{
		Image:             imgBytes,
		Description:       description,
		SalesOrderID:      po.SalesOrderID,
		ProductionOrderID: po.ID,
	}); err != nil {
		log.Printf("factoryevent: failed to notify operator channel: %v", err)
	}

	observability.FactoryEventsIngested.WithLabelValues("resolved").Inc()

	respBody := []byte(fmt.Sprintf(`{"acknowledged":true,"po_id":%q,"so_id":%q,"incident_id":%q}`, po.ID, po.SalesOrderID, incidentID))
	if idemKey != "" && in.idempotent != nil {
		if err := in.idempotent.Set(ctx, idemKey, idempotency.Response{StatusCode: http.StatusAccepted, Body: respBody}); err != nil {
			log.Printf("factoryevent: failed to cache idempotent response: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write(respBody)
}

// resolveProductionOrder implements spec.md §4.6 step 1's PO-matching
// algorithm: explicit id (if currently tracked and ready/in_progress), else
// the single in-progress PO, else the PO whose planned window contains now,
// else the earliest-starting ready PO.
func (in *Intake) resolveProductionOrder(ctx context.Context, explicitID string) (domain.ProductionOrder, error) {
	if explicitID != "" {
		po, err := in.gw.GetProductionOrder(ctx, explicitID)
		if err == nil && (po.Status == domain.ProductionOrderReady || po.Status == domain.ProductionOrderInProgress) {
			return po, nil
		}
	}

	inProgress, err := in.gw.ListProductionOrders(ctx, domain.ProductionOrderInProgress)
	if err != nil {
		return domain.ProductionOrder{}, &lferrors.ResolutionError{Reason: fmt.Sprintf("listing in-progress POs: %v", err)}
	}
	if len(inProgress) == 1 {
		return inProgress[0], nil
	}

	now := in.now()
	all, err := in.gw.ListProductionOrders(ctx)
	if err != nil {
		return domain.ProductionOrder{}, &lferrors.ResolutionError{Reason: fmt.Sprintf("listing production orders: %v", err)}
	}
	var windowed []domain.ProductionOrder
	for _, po := range all {
		if !po.PlannedStart.After(now) && po.PlannedEnd.After(now) {
			windowed = append(windowed, po)
		}
	}
	if len(windowed) > 0 {
		sort.Slice(windowed, func(i, j int) bool { return windowed[i].ID < windowed[j].ID })
		return windowed[0], nil
	}

	ready, err := in.gw.ListProductionOrders(ctx, domain.ProductionOrderReady)
	if err != nil {
		return domain.ProductionOrder{}, &lferrors.ResolutionError{Reason: fmt.Sprintf("listing ready POs: %v", err)}
	}
	if len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].PlannedStart.Before(ready[j].PlannedStart) })
		return ready[0], nil
	}

	return domain.ProductionOrder{}, &lferrors.ResolutionError{Reason: "no explicit, in-progress, windowed, or ready production order could be identified"}
}

// CancelOrder implements the cancel_order recovery action: mark the SO
// cancelled, then trigger a fresh proposal over the remaining accepted SOs.
func (in *Intake) CancelOrder(ctx context.Context, salesOrderID, productionOrderID string) (domain.Schedule, error) {
	cancelled := domain.SalesOrderCancelled
	if err := in.gw.UpdateSalesOrder(ctx, salesOrderID, gateway.SalesOrderUpdate{Status: &cancelled}); err != nil {
		return domain.Schedule{}, err
	}
	observability.RecoveryActionsIssued.WithLabelValues("cancel_order").Inc()
	return in.orchestrator.ComputeProposal(ctx, in.policy(), false)
}

// RestartOrder implements the restart_order recovery action: leave the SO
// intact, delete the failed PO, then trigger a fresh proposal that will
// include this SO with a new PO.
func (in *Intake) RestartOrder(ctx context.Context, salesOrderID, productionOrderID string) (domain.Schedule, error) {
	if err := in.gw.DeleteProductionOrder(ctx, productionOrderID); err != nil {
		return domain.Schedule{}, err
	}
	observability.RecoveryActionsIssued.WithLabelValues("restart_order").Inc()
	return in.orchestrator.ComputeProposal(ctx, in.policy(), false)
}

func (in *Intake) policy() domain.Policy {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastPolicy
}

// SetPolicy records the policy subsequent recovery-triggered proposals
// should use; callers typically set this from the last operator-chosen
// policy.
func (in *Intake) SetPolicy(p domain.Policy) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.lastPolicy = p
}
