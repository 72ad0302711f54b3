// Package httpapi builds the HTTP surface: import/rebuild/delete
// operations under /api, and operational endpoints under /ops.
package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"ticklog/internal/config"
	"ticklog/internal/importer"
	"ticklog/internal/metrics"
	"ticklog/internal/models"
	"ticklog/internal/queue"
	"ticklog/internal/store"
)

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg      config.Config
	store    *store.Store
	importer *importer.Importer
	queue    *queue.Queue
	metrics  *metrics.Metrics
}

func NewRouter(cfg config.Config, st *store.Store, im *importer.Importer, q *queue.Queue, m *metrics.Metrics) *Router {
	return &Router{cfg: cfg, store: st, importer: im, queue: q, metrics: m}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/import", r.importTicks)
	mux.HandleFunc("/api/reimport", r.reimport)
	mux.HandleFunc("/api/rebuild", r.rebuild)
	mux.HandleFunc("/api/ticks", r.ticks)
	mux.HandleFunc("/api/counts", r.counts)
	mux.HandleFunc("/api/areas", r.areas)
	mux.HandleFunc("/api/user", r.user)
	mux.HandleFunc("/api/export", r.export)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/healthz", r.health)
}

type importRequest struct {
	User  string `json:"user"`
	Email string `json:"email"`
	Key   string `json:"key"`
}

func (r *Router) importTicks(w http.ResponseWriter, req *http.Request) {
	r.enqueueImport(w, req, false)
}

func (r *Router) reimport(w http.ResponseWriter, req *http.Request) {
	r.enqueueImport(w, req, true)
}

func (r *Router) enqueueImport(w http.ResponseWriter, req *http.Request, overwrite bool) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body importRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.User == "" || body.Email == "" || body.Key == "" {
		http.Error(w, "user, email, and key are required", http.StatusBadRequest)
		return
	}

	jobID := uuid.NewString()
	creds := importer.Credentials{Email: body.Email, Key: body.Key}
	work := func(ctx context.Context) error {
		var err error
		if overwrite {
			_, err = r.importer.Reimport(ctx, body.User, creds)
		} else {
			_, err = r.importer.Import(ctx, body.User, creds)
		}
		return err
	}
	if !r.queue.Enqueue(queue.Job{ID: jobID, Source: "api", Work: work, OnFinish: r.metrics.RecordJobCompletion}) {
		http.Error(w, "import queue full", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "queued", "job": jobID, "user": body.User}); err != nil {
		log.Printf("write json: %v", err)
	}
}

func (r *Router) rebuild(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.User == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}
	if err := r.importer.RebuildCounts(req.Context(), body.User); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"status": "rebuilt", "user": body.User})
}

// ticks serves one route's tick set (GET) and soft-deletes single ticks
// (DELETE).
func (r *Router) ticks(w http.ResponseWriter, req *http.Request) {
	userID := req.URL.Query().Get("user")
	routeID, routeErr := strconv.ParseInt(req.URL.Query().Get("route"), 10, 64)
	if userID == "" || routeErr != nil {
		http.Error(w, "user and route are required", http.StatusBadRequest)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.serveDoc(w, req, userID, "routes/"+strconv.FormatInt(routeID, 10))
	case http.MethodDelete:
		tickID, err := strconv.ParseInt(req.URL.Query().Get("tick"), 10, 64)
		if err != nil {
			http.Error(w, "tick is required", http.StatusBadRequest)
			return
		}
		if err := r.importer.DeleteTick(req.Context(), userID, models.RouteID(routeID), models.TickID(tickID)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, map[string]any{"status": "deleted", "route": routeID, "tick": tickID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Router) counts(w http.ResponseWriter, req *http.Request) {
	r.serveUserDoc(w, req, "counts")
}

func (r *Router) user(w http.ResponseWriter, req *http.Request) {
	r.serveUserDoc(w, req, "user")
}

func (r *Router) areas(w http.ResponseWriter, req *http.Request) {
	path := "areas/map"
	if id := req.URL.Query().Get("id"); id != "" {
		path = "areas/" + id
	}
	r.serveUserDoc(w, req, path)
}

func (r *Router) serveUserDoc(w http.ResponseWriter, req *http.Request, path string) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := req.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}
	r.serveDoc(w, req, userID, path)
}

func (r *Router) serveDoc(w http.ResponseWriter, req *http.Request, userID, path string) {
	snap, found, err := r.store.Get(req.Context(), userID, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(snap.Data)
}

// export streams every live tick as CSV, newest first.
func (r *Router) export(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := req.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}
	snap, err := r.importer.ExportSnapshot(req.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sort.Slice(snap.Ticks, func(i, j int) bool {
		if snap.Ticks[i].Date != snap.Ticks[j].Date {
			return snap.Ticks[i].Date > snap.Ticks[j].Date
		}
		return snap.Ticks[i].TickID > snap.Ticks[j].TickID
	})
	names := map[int64]string{}
	for _, route := range snap.Routes {
		names[route.ID] = route.Name
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="ticks.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"tickId", "routeId", "route", "date", "style", "leadStyle", "pitches", "stars", "notes"})
	for _, tick := range snap.Ticks {
		cw.Write([]string{
			strconv.FormatInt(tick.TickID, 10),
			strconv.FormatInt(tick.RouteID, 10),
			names[tick.RouteID],
			tick.Date,
			tick.Style,
			tick.LeadStyle,
			strconv.Itoa(tick.Pitches),
			strconv.Itoa(tick.UserStars),
			tick.Notes,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("write csv: %v", err)
	}
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	users, err := r.store.ListUsers(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats := r.queue.Stats()
	r.metrics.UpdateQueue(stats.Length, stats.Capacity, stats.WorkerCount)
	respondJSON(w, map[string]any{
		"users":   users,
		"queue":   stats,
		"metrics": r.metrics.Snapshot(),
		"workers": r.cfg.WorkerCount,
	})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !r.queue.Healthy() {
		http.Error(w, "queue not started", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
