package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factcheck/api/internal/dossier"
	"factcheck/api/internal/rbac"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/search"
)

const (
	defaultRevisionLimit = 200
	maxRevisionLimit     = 5000
	maxSearchLimit       = 100
)

// Pinger reports store reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Searcher answers full-text queries over dossier entities.
type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type HTTPServer struct {
	dossiers   *dossier.Service
	search     Searcher
	db         Pinger
	corsOrigin string
	metrics    http.Handler
}

func NewHTTPServer(dossiers *dossier.Service, searcher Searcher, db Pinger, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		dossiers:   dossiers,
		search:     searcher,
		db:         db,
		corsOrigin: corsOrigin,
		metrics:    promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	readOnly := r.Method == http.MethodGet || r.Method == http.MethodHead
	switch {
	case readOnly && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case readOnly && r.URL.Path == "/api/ready":
		s.handleReady(w, r)
		return
	case readOnly && r.URL.Path == "/metrics":
		s.metrics.ServeHTTP(w, r)
		return
	case readOnly && r.URL.Path == "/api/search":
		s.handleSearch(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/dossiers":
		s.handleEnsure(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/receipts/check":
		s.handleCheckReceipt(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "dossiers" {
		s.handleDossier(w, r, parts[2], parts[3:])
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.db.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "QUERY_REQUIRED", "q is required", nil)
		return
	}
	filterType := search.ResultType(query.Get("type"))
	switch filterType {
	case "", search.ResultClaim, search.ResultQuestion, search.ResultSource:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be claim, open_question or source", nil)
		return
	}
	if s.search == nil {
		writeJSON(w, http.StatusOK, search.Response{Results: []search.Result{}, Query: text})
		return
	}
	writeJSON(w, http.StatusOK, s.search.Search(r.Context(), search.Query{
		Text:            text,
		FilterType:      filterType,
		FilterDossierID: query.Get("dossier"),
		Limit:           boundedInt(query.Get("limit"), 20, maxSearchLimit),
		Offset:          boundedInt(query.Get("offset"), 0, 10_000),
	}))
}

func (s *HTTPServer) handleEnsure(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StatementID string   `json:"statementId"`
		Title       string   `json:"title"`
		Aliases     []string `json:"aliases"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	d, err := s.dossiers.EnsureForStatement(r.Context(), body.StatementID, body.Title, body.Aliases)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dossierView(d))
}

func (s *HTTPServer) handleCheckReceipt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Receipt string `json:"receipt"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	verdict, err := s.dossiers.CheckReceipt(r.Context(), body.Receipt)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *HTTPServer) handleDossier(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	ctx := r.Context()
	d, err := s.dossiers.FindByAnyID(ctx, id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	dossierID := d.DossierID
	actor := actorFromRequest(r)

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		detail, err := s.dossiers.Detail(ctx, dossierID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detailView(detail))

	case len(rest) == 1 && rest[0] == "revisions" && r.Method == http.MethodGet:
		limit := boundedInt(r.URL.Query().Get("limit"), defaultRevisionLimit, maxRevisionLimit)
		revs, err := s.dossiers.Revisions(ctx, dossierID, limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		items := make([]map[string]any, 0, len(revs))
		for _, rev := range revs {
			items = append(items, revisionView(rev))
		}
		writeJSON(w, http.StatusOK, map[string]any{"dossierId": dossierID, "revisions": items})

	case len(rest) == 1 && rest[0] == "verify" && r.Method == http.MethodGet:
		report, err := s.dossiers.VerifyChain(ctx, dossierID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dossierId": dossierID, "chain": report})

	case len(rest) == 1 && rest[0] == "receipt" && r.Method == http.MethodGet:
		token, claims, err := s.dossiers.IssueReceipt(ctx, dossierID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"receipt": token, "claims": claims})

	case len(rest) == 1 && rest[0] == "analysis" && r.Method == http.MethodPost:
		var body schema.Analysis
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if claimed := strings.TrimSpace(body.CreatedByRole); claimed != "" && string(rbac.Normalize(claimed)) != actor.Role {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "createdByRole must match the caller's role", nil)
			return
		}
		body.CreatedByRole = actor.Role
		result, err := s.dossiers.SeedFromAnalysis(ctx, dossierID, body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(rest) == 1 && rest[0] == "recount" && r.Method == http.MethodPost:
		if !rbac.Can(rbac.Role(actor.Role), rbac.ActionAdmin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		counts, err := s.dossiers.UpdateCounts(ctx, dossierID, "counts recomputed on request")
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dossierId": dossierID, "counts": counts})

	case len(rest) == 1 && rest[0] == "disputes" && r.Method == http.MethodGet:
		items, err := s.dossiers.ListDisputes(ctx, dossierID, r.URL.Query().Get("status"))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		views := make([]map[string]any, 0, len(items))
		for _, item := range items {
			views = append(views, disputeView(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": views})

	case len(rest) == 1 && rest[0] == "disputes" && r.Method == http.MethodPost:
		var body schema.DisputeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.dossiers.OpenDispute(ctx, dossierID, body, actor)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, disputeView(created))

	case len(rest) == 3 && rest[0] == "disputes" && rest[2] == "resolve" && r.Method == http.MethodPost:
		var body struct {
			Status     string `json:"status"`
			Resolution string `json:"resolution"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		closed, err := s.dossiers.ResolveDispute(ctx, dossierID, rest[1], body.Status, body.Resolution, actor)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, disputeView(closed))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// actorFromRequest reads the acting role and user from headers set by the
// fronting gateway. Unknown roles fall back to member.
func actorFromRequest(r *http.Request) schema.Actor {
	return schema.Actor{
		Role:   string(rbac.Normalize(strings.TrimSpace(r.Header.Get("X-Dossier-Role")))),
		UserID: strings.TrimSpace(r.Header.Get("X-Dossier-User")),
	}
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if r.URL.Path != "/metrics" {
			setCORSHeaders(writer.Header(), s.corsOrigin)
		}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Dossier-Role, X-Dossier-User")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func boundedInt(raw string, fallback, max int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}
