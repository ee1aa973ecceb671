// Command control runs the Line Scheduling Engine's control plane: it wires
// the Gateway, Coordination, Orchestrator, Factory Event Intake, and
// /metrics endpoint, then serves until SIGINT/SIGTERM. Grounded on
// control_plane/main.go's wiring shape (env-driven backend selection,
// leader-gated start, graceful shutdown).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lineflow/scheduler/internal/advisor"
	"github.com/lineflow/scheduler/internal/config"
	"github.com/lineflow/scheduler/internal/coordination"
	"github.com/lineflow/scheduler/internal/domain"
	"github.com/lineflow/scheduler/internal/factoryevent"
	"github.com/lineflow/scheduler/internal/gantt"
	"github.com/lineflow/scheduler/internal/gateway"
	"github.com/lineflow/scheduler/internal/idempotency"
	"github.com/lineflow/scheduler/internal/livefeed"
	"github.com/lineflow/scheduler/internal/middleware"
	"github.com/lineflow/scheduler/internal/notifier"
	"github.com/lineflow/scheduler/internal/operatorchannel"
	"github.com/lineflow/scheduler/internal/orchestrator"
	"github.com/lineflow/scheduler/internal/policy"
)

// policyFromString maps a request body's policy name (case-insensitive) to
// the closed domain.Policy set, defaulting to EDF for anything unrecognised.
func policyFromString(s string) domain.Policy {
	p := domain.Policy(strings.ToUpper(s))
	if p.Valid() {
		return p
	}
	return domain.PolicyEDF
}

func nodeID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "node-unknown"
	}
	return "node-" + hostname
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := gateway.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pg.Close()

	lease, err := coordination.NewRedisLease(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer lease.Close()

	gw := gateway.NewRetrying(pg, gateway.NewStaticTokenSource("")).
		WithTimeout(cfg.GatewayTimeout).
		WithCircuitBreaker(cfg.GatewayMaxRetries*2, 30*time.Second)

	idemStore := idempotency.NewStore(lease, cfg.IdempotencyTTL)

	elector := coordination.NewLeaderElector(lease, nodeID(), cfg.LeaderLockTTL)
	elector.Start(ctx)
	defer elector.Stop()

	ranks := policy.CustomerRanks{} // no customer-rank overrides by default

	var adv advisor.Advisor
	if cfg.AIAPIKey != "" {
		genaiClient, err := advisor.NewGenAI(ctx, cfg.AIAPIKey, cfg.AIModelName, cfg.AITimeout)
		if err != nil {
			log.Printf("AI advisor disabled: %v", err)
		} else {
			adv = genaiClient
		}
	}

	var channel operatorchannel.Channel
	if cfg.TelegramBotToken != "" {
		channel = operatorchannel.NewWebhook(cfg.TelegramWebhookBase, cfg.TelegramBotToken)
	} else {
		channel = operatorchannel.NewMemory()
	}

	var notify notifier.Notifier
	if cfg.SMTPHost != "" {
		notify = notifier.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, nil)
	} else {
		notify = notifier.NewMemory()
	}

	scheduleHub := livefeed.NewHub()
	go scheduleHub.Run(ctx)

	opts := []orchestrator.Option{
		orchestrator.WithChannel(channel),
		orchestrator.WithNotifier(notify),
		orchestrator.WithRenderer(gantt.NewStub()),
		orchestrator.WithLeaderCheck(elector),
		orchestrator.WithScheduleStream(scheduleHub),
	}
	if adv != nil {
		opts = append(opts, orchestrator.WithAdvisor(adv))
	}
	orch := orchestrator.New(gw, ranks, opts...)

	incidents := factoryevent.NewMemoryIncidentStore()
	intake := factoryevent.New(gw, orch, channel, incidents, cfg.FactoryEventRateLimit, 5).
		WithIdempotencyStore(idemStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/factory-events", intake)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stream/schedule", scheduleHub.ServeHTTP)
	mux.HandleFunc("/proposal/compute", handleComputeProposal(orch))
	mux.HandleFunc("/proposal/approve", handleApprove(orch))
	mux.HandleFunc("/proposal/reject", handleReject(orch))
	mux.HandleFunc("/operator/action", handleOperatorAction(orch, intake))

	server := &http.Server{Addr: ":" + itoa(cfg.FactoryEventListenPort), Handler: middleware.CORS(mux)}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}

	go func() {
		log.Printf("control plane listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func handleComputeProposal(o *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Policy string `json:"policy"`
			UseAI  bool   `json:"use_ai"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		schedule, err := o.ComputeProposal(r.Context(), policyFromString(body.Policy), body.UseAI)
		if err != nil {
			writeOrchestratorError(w, err)
			return
		}
		json.NewEncoder(w).Encode(schedule)
	}
}

func handleApprove(o *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			ProposalID int64 `json:"proposal_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := o.Approve(r.Context(), body.ProposalID); err != nil {
			writeOrchestratorError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleReject(o *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			ProposalID int64 `json:"proposal_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := o.Reject(r.Context(), body.ProposalID); err != nil {
			writeOrchestratorError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleOperatorAction dispatches the closed set of operator responses
// spec.md §6 defines (approve, reject, revise, cancel_order, restart_order,
// request_new_schedule) into the Orchestrator / Factory Event Intake. This
// is the receive side of the bidirectional operator channel; a chat-bot
// webhook wired to the same bot token POSTs here.
func handleOperatorAction(o *orchestrator.Orchestrator, intake *factoryevent.Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Action            operatorchannel.Action `json:"action"`
			ProposalID        int64                  `json:"proposal_id"`
			ReviseText        string                 `json:"revise_text"`
			SalesOrderID      string                 `json:"sales_order_id"`
			ProductionOrderID string                 `json:"production_order_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		var err error
		switch body.Action {
		case operatorchannel.ActionApprove:
			err = o.Approve(ctx, body.ProposalID)
		case operatorchannel.ActionReject:
			err = o.Reject(ctx, body.ProposalID)
		case operatorchannel.ActionRevise:
			_, err = o.Revise(ctx, body.ProposalID, body.ReviseText)
		case operatorchannel.ActionCancelOrder:
			_, err = intake.CancelOrder(ctx, body.SalesOrderID, body.ProductionOrderID)
		case operatorchannel.ActionRestartOrder:
			_, err = intake.RestartOrder(ctx, body.SalesOrderID, body.ProductionOrderID)
		case operatorchannel.ActionRequestNewSchedule:
			_, err = o.ComputeProposal(ctx, domain.PolicyEDF, false)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeOrchestratorError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeOrchestratorError(w http.ResponseWriter, err error) {
	if err == orchestrator.ErrNotLeader {
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err == orchestrator.ErrNoSuchProposal {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
