package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"apsplan/internal/cache"
	"apsplan/internal/catalog"
	"apsplan/internal/metrics"
	"apsplan/internal/model"
	"apsplan/internal/opt"
	"apsplan/internal/store"
)

// ScheduleHandler handles POST /v1/schedule
func (s *Server) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	if !p.CanSchedule() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.ScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid schedule request", validationDetail(err), r.URL.Path)
		return
	}
	tenant := p.Tenant
	if req.TenantID != "" && req.TenantID != tenant {
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "cannot schedule for another tenant", r.URL.Path)
			return
		}
		tenant = req.TenantID
	}
	cfg, err := s.schedulerConfig(r.Context(), tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load scheduler config failed", err.Error(), r.URL.Path)
		return
	}
	cfg = requestOverlay(req).Apply(cfg)

	res, status := s.runSchedule(r.Context(), tenant, req, cfg)
	writeJSON(w, status, res)
}

func requestOverlay(req model.ScheduleRequest) *model.SchedulerConfig {
	o := &model.SchedulerConfig{
		TimeBudgetMs: req.TimeBudgetMs,
		Workers:      req.Workers,
		NodeLimit:    req.NodeLimit,
	}
	if req.UnknownLines != "" {
		o.UnknownLines = &req.UnknownLines
	}
	return o
}

// runSchedule solves (or reuses) one batch, records the run and announces it.
func (s *Server) runSchedule(ctx context.Context, tenant string, req model.ScheduleRequest, cfg opt.Config) (model.ScheduleResult, int) {
	key, keyErr := cache.Key(tenant, s.Catalog, req.Orders, cfg)
	var res model.ScheduleResult
	hit := false
	if keyErr == nil && !req.NoCache {
		cached, err := s.Cache.Get(ctx, key)
		switch {
		case err == nil:
			res, hit = cached, true
			res.Cached = true
			metrics.CacheLookups.WithLabelValues("hit").Inc()
		case errors.Is(err, cache.ErrMiss):
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Printf("cache get tenant=%s err=%v", tenant, err)
		}
	}

	status := http.StatusOK
	event := model.EventScheduleCompleted
	if !hit {
		out, err := opt.Schedule(ctx, s.Catalog, req.Orders, cfg)
		if err != nil {
			res = model.FailedResult(err)
			status = http.StatusInternalServerError
			if isInputError(err) {
				status = http.StatusBadRequest
			}
			event = model.EventScheduleFailed
			metrics.ScheduleRuns.WithLabelValues("rejected").Inc()
		} else {
			res = model.NewScheduleResult(out)
			metrics.ObserveSchedule(string(out.Status), out.Stats.WallTime.Seconds(), out.Stats.Branches, out.Stats.Conflicts)
			if keyErr == nil && cache.Cacheable(res) {
				if err := s.Cache.Put(ctx, key, res); err != nil {
					log.Printf("cache put tenant=%s err=%v", tenant, err)
				}
			}
		}
	}
	if !res.Status.Solved() && res.Error != "" && event == model.EventScheduleCompleted {
		event = model.EventScheduleFailed
	}

	run := model.Run{
		RunSummary: model.RunSummary{
			ID:        uuid.New().String(),
			TenantID:  tenant,
			Status:    res.Status,
			Orders:    len(req.Orders),
			Entries:   len(res.Schedule),
			CreatedAt: time.Now().UTC(),
		},
	}
	if res.Makespan != nil {
		run.Makespan = *res.Makespan
	}
	res.RunID = run.ID
	run.Result = res
	// persisting and announcing must outlive a client that already hung up
	bg := context.WithoutCancel(ctx)
	if err := s.Store.SaveRun(bg, run); err != nil {
		log.Printf("save run tenant=%s run=%s err=%v", tenant, run.ID, err)
	}
	data := map[string]any{
		"runId":    run.ID,
		"status":   run.Status,
		"makespan": res.Makespan,
		"orders":   run.Orders,
		"entries":  run.Entries,
		"cached":   res.Cached,
	}
	if res.Error != "" {
		data["error"] = res.Error
	}
	s.Broker.Publish(tenant, SSEEvent{Type: event, Data: data})
	if s.Pub != nil {
		if _, err := s.Pub.Emit(bg, tenant, event, data); err != nil {
			log.Printf("webhook emit tenant=%s run=%s err=%v", tenant, run.ID, err)
		}
	}
	log.Printf("schedule tenant=%s run=%s status=%s orders=%d entries=%d makespan=%d cached=%t",
		tenant, run.ID, run.Status, run.Orders, run.Entries, run.Makespan, res.Cached)
	return res, status
}

func isInputError(err error) bool {
	return errors.Is(err, catalog.ErrUnknownLine) ||
		errors.Is(err, opt.ErrInvalidQuantity) ||
		errors.Is(err, opt.ErrDurationRange) ||
		errors.Is(err, opt.ErrTooManyTasks)
}

type durationRequest struct {
	Line           catalog.LineID `json:"line" validate:"required"`
	Quantity       *float64       `json:"quantity" validate:"required"`
	InputDiameter  *float64       `json:"input_diameter"`
	OutputDiameter *float64       `json:"output_diameter"`
}

// DurationHandler handles POST /v1/duration
func (s *Server) DurationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req durationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid duration request", validationDetail(err), r.URL.Path)
		return
	}
	var dia *catalog.DiameterPair
	if req.InputDiameter != nil && req.OutputDiameter != nil {
		dia = &catalog.DiameterPair{In: *req.InputDiameter, Out: *req.OutputDiameter}
	}
	minutes, err := opt.DurationMinutes(s.Catalog, req.Line, *req.Quantity, dia)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Cannot compute duration", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"time": minutes})
}

// LinesHandler handles GET /v1/lines
func (s *Server) LinesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	out := map[catalog.LineID]map[string]any{}
	for _, l := range s.Catalog.Lines() {
		out[l.ID] = map[string]any{
			"name":   l.Name,
			"daily":  l.DailyCapacity,
			"hourly": l.HourlyCapacity(),
			"unit":   l.Unit,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type wireRateRequest struct {
	InputDiameter  *float64 `json:"input_diameter" validate:"required"`
	OutputDiameter *float64 `json:"output_diameter" validate:"required"`
}

// WireRateHandler handles POST /v1/wire-rate
func (s *Server) WireRateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req wireRateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid wire rate request", validationDetail(err), r.URL.Path)
		return
	}
	speed, err := s.Catalog.WireRate(catalog.DiameterPair{In: *req.InputDiameter, Out: *req.OutputDiameter})
	if err != nil {
		writeProblem(w, http.StatusNotFound, "No wire rate", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"speed": speed, "unit": "kg/h"})
}

// RunsIndexHandler handles GET /v1/runs
func (s *Server) RunsIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}, /v1/runs/stream and /v1/runs/ws
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs/"), "/")
	switch id {
	case "":
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	case "stream":
		s.RunsStreamHandler(w, r)
		return
	case "ws":
		s.RunsWSHandler(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// AdminSchedulerConfigHandler handles GET/PUT /v1/admin/scheduler/config
func (s *Server) AdminSchedulerConfigHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		tc, err := s.Store.GetSchedulerConfig(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
			return
		}
		if tc == nil {
			tc = &model.SchedulerConfig{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": tc, "effective": effective(tc.Apply(s.Config.SchedulerBase(s.Catalog)))})
	case http.MethodPut:
		var body struct {
			Config *model.SchedulerConfig `json:"config"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := s.validate.Struct(body.Config); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", validationDetail(err), r.URL.Path)
			return
		}
		if body.Config.DefaultLine != nil && !s.Catalog.Has(catalog.LineID(*body.Config.DefaultLine)) {
			writeProblem(w, http.StatusBadRequest, "Invalid config", "defaultLine: unknown production line", r.URL.Path)
			return
		}
		if err := s.Store.SaveSchedulerConfig(r.Context(), p.Tenant, *body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func effective(c opt.Config) map[string]any {
	return map[string]any{
		"timeBudgetMs":    c.TimeBudget.Milliseconds(),
		"workers":         c.Workers,
		"nodeLimit":       c.NodeLimit,
		"unknownLines":    c.UnknownLines,
		"greedySeed":      c.GreedySeed,
		"defaultLine":     c.Defaults.Line,
		"defaultQuantity": c.Defaults.Quantity,
		"defaultProduct":  c.Defaults.Product,
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/subscriptions" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", validationDetail(err), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz; backing stores that can be pinged must answer.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for name, dep := range map[string]any{"store": s.Store, "cache": s.Cache} {
		if pg, ok := dep.(pinger); ok {
			if err := pg.Ping(ctx); err != nil {
				writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "lines": len(s.Catalog.Lines())})
}
