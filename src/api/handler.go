package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/marketdata"
	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/query"
	"github.com/premiummeter/premiummeter/src/scheduler"
	"github.com/premiummeter/premiummeter/src/scraper"
)

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func NewErrorResponse(errType string, message string) *errorResponse {
	return &errorResponse{
		Type: errType,
		Msg:  message,
	}
}

func setResponse(response interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("SetResponse: encode: %w", err)
	}

	return nil
}

func setErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := NewErrorResponse(errType, err.Error())
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		return encodeErr
	}

	return nil
}

type Handler struct {
	db        models.IDatabaseService
	worker    *scheduler.Worker
	collector *scraper.Scraper
	queries   *query.Service
	display   *marketdata.DisplayPriceService
	decoder   *schema.Decoder
}

// SetupHandler registers the control surface on router. Every route carries
// its pattern as the http.route attribute for the tracing middleware.
func SetupHandler(router *mux.Router, db models.IDatabaseService, worker *scheduler.Worker, collector *scraper.Scraper, queries *query.Service, display *marketdata.DisplayPriceService) {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	h := &Handler{
		db:        db,
		worker:    worker,
		collector: collector,
		queries:   queries,
		display:   display,
		decoder:   decoder,
	}

	h.handle(router, "/health", h.handleHealth)
	h.handle(router, "/api/scheduler/config", h.handleSchedulerConfig)
	h.handle(router, "/api/scheduler/pause", h.handlePause)
	h.handle(router, "/api/scheduler/resume", h.handleResume)
	h.handle(router, "/api/scheduler/trigger", h.handleTrigger)
	h.handle(router, "/api/scheduler/progress", h.handleProgress)
	h.handle(router, "/api/scheduler/runs", h.handleRuns)
	h.handle(router, "/api/scheduler/rate-limits", h.handleRateLimits)
	h.handle(router, "/api/query/premiums", h.handleQueryPremiums)
	h.handle(router, "/api/query/distribution", h.handleQueryDistribution)
	h.handle(router, "/api/query/surface", h.handleQuerySurface)
	h.handle(router, "/api/watchlist", h.handleWatchlist)
	h.handle(router, "/api/watchlist/{ticker}", h.handleWatchlistItem)
	h.handle(router, "/api/stocks/{ticker}/price", h.handleStockPrice)
}

func (h *Handler) handle(router *mux.Router, pattern string, handlerFunc func(http.ResponseWriter, *http.Request)) {
	router.Handle(pattern, otelhttp.WithRouteTag(pattern, http.HandlerFunc(handlerFunc)))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleHealth: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		schedule, err := h.worker.CurrentSchedule()
		if err != nil {
			setErrorResponse("handleSchedulerConfig: failed to fetch schedule", 500, err, w)
			return
		}

		if err := setResponse(schedule.ToDTO(), w); err != nil {
			setErrorResponse("handleSchedulerConfig: failed to set response", 500, err, w)
			return
		}
	case "PUT":
		var req models.ScheduleConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			setErrorResponse("handleSchedulerConfig: failed to decode request", 400, err, w)
			return
		}

		schedule, err := h.worker.UpdateConfig(&req)
		if err != nil {
			if errors.Is(err, scheduler.ErrInvalidConfig) {
				setErrorResponse("handleSchedulerConfig: invalid configuration", 400, err, w)
				return
			}

			setErrorResponse("handleSchedulerConfig: failed to update schedule", 500, err, w)
			return
		}

		if err := setResponse(schedule.ToDTO(), w); err != nil {
			setErrorResponse("handleSchedulerConfig: failed to set response", 500, err, w)
			return
		}
	default:
		w.WriteHeader(404)
	}
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(404)
		return
	}

	schedule, err := h.worker.Pause()
	if err != nil {
		setErrorResponse("handlePause: failed to pause", 500, err, w)
		return
	}

	if err := setResponse(schedule.ToDTO(), w); err != nil {
		setErrorResponse("handlePause: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(404)
		return
	}

	runImmediately := false

	if v := r.URL.Query().Get("run_immediately"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			setErrorResponse("handleResume: failed to parse run_immediately", 400, err, w)
			return
		}

		runImmediately = parsed
	}

	schedule, err := h.worker.Resume(runImmediately)
	if err != nil {
		setErrorResponse("handleResume: failed to resume", 500, err, w)
		return
	}

	if err := setResponse(schedule.ToDTO(), w); err != nil {
		setErrorResponse("handleResume: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(404)
		return
	}

	if err := h.worker.TriggerRun(); err != nil {
		if errors.Is(err, scraper.ErrRunInProgress) {
			setErrorResponse("handleTrigger: run already in progress", 409, err, w)
			return
		}

		setErrorResponse("handleTrigger: failed to trigger run", 500, err, w)
		return
	}

	response := map[string]interface{}{
		"message": "collection run started",
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleTrigger: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	if err := setResponse(h.collector.Progress(), w); err != nil {
		setErrorResponse("handleProgress: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	limit := 10

	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			setErrorResponse("handleRuns: failed to parse limit", 400, err, w)
			return
		}

		if parsed < 1 || parsed > 100 {
			setErrorResponse("handleRuns: invalid limit", 400, fmt.Errorf("limit must be between 1 and 100, got %d", parsed), w)
			return
		}

		limit = parsed
	}

	runs, err := h.db.FetchRecentRuns(limit)
	if err != nil {
		setErrorResponse("handleRuns: failed to fetch runs", 500, err, w)
		return
	}

	dtos := make([]*models.ScraperRunDTO, 0, len(runs))
	for i := range runs {
		dtos = append(dtos, runs[i].ToDTO())
	}

	response := map[string]interface{}{
		"runs": dtos,
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleRuns: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	schedule, err := h.worker.CurrentSchedule()
	if err != nil {
		setErrorResponse("handleRateLimits: failed to fetch schedule", 500, err, w)
		return
	}

	stocks, err := h.db.FetchActiveStocks()
	if err != nil {
		setErrorResponse("handleRateLimits: failed to fetch active stocks", 500, err, w)
		return
	}

	report := models.CalculateRateLimits(len(stocks), schedule)

	response := map[string]interface{}{
		"report":            report,
		"daily_api_queries": schedule.DailyAPIQueries,
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleRateLimits: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleQueryPremiums(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	if err := r.ParseForm(); err != nil {
		setErrorResponse("handleQueryPremiums: failed to parse form", 400, err, w)
		return
	}

	req := new(models.PremiumQueryRequest)
	if err := h.decoder.Decode(req, r.Form); err != nil {
		setErrorResponse("handleQueryPremiums: failed to decode request", 400, err, w)
		return
	}

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		setErrorResponse("handleQueryPremiums: invalid request", 400, err, w)
		return
	}

	response, err := h.queries.QueryPremiums(r.Context(), req)
	if err != nil {
		if errors.Is(err, data.ErrStockNotFound) {
			setErrorResponse("handleQueryPremiums: unknown ticker", 404, err, w)
			return
		}

		setErrorResponse("handleQueryPremiums: query failed", 500, err, w)
		return
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleQueryPremiums: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleQueryDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	if err := r.ParseForm(); err != nil {
		setErrorResponse("handleQueryDistribution: failed to parse form", 400, err, w)
		return
	}

	req := new(models.PremiumWindowRequest)
	if err := h.decoder.Decode(req, r.Form); err != nil {
		setErrorResponse("handleQueryDistribution: failed to decode request", 400, err, w)
		return
	}

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		setErrorResponse("handleQueryDistribution: invalid request", 400, err, w)
		return
	}

	response, err := h.queries.QueryDistribution(r.Context(), req)
	if err != nil {
		if errors.Is(err, data.ErrStockNotFound) {
			setErrorResponse("handleQueryDistribution: unknown ticker", 404, err, w)
			return
		}

		setErrorResponse("handleQueryDistribution: query failed", 500, err, w)
		return
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleQueryDistribution: failed to set response", 500, err, w)
		return
	}
}

func (h *Handler) handleQuerySurface(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	if err := r.ParseForm(); err != nil {
		setErrorResponse("handleQuerySurface: failed to parse form", 400, err, w)
		return
	}

	req := new(models.PremiumWindowRequest)
	if err := h.decoder.Decode(req, r.Form); err != nil {
		setErrorResponse("handleQuerySurface: failed to decode request", 400, err, w)
		return
	}

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		setErrorResponse("handleQuerySurface: invalid request", 400, err, w)
		return
	}

	response, err := h.queries.QuerySurface(r.Context(), req)
	if err != nil {
		if errors.Is(err, data.ErrStockNotFound) {
			setErrorResponse("handleQuerySurface: unknown ticker", 404, err, w)
			return
		}

		setErrorResponse("handleQuerySurface: query failed", 500, err, w)
		return
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleQuerySurface: failed to set response", 500, err, w)
		return
	}
}

type AddStockRequest struct {
	Ticker      string `json:"ticker"`
	CompanyName string `json:"company_name"`
	Notes       string `json:"notes"`
}

type UpdateWatchlistRequest struct {
	MonitoringStatus *models.MonitoringStatus `json:"monitoring_status"`
	Notes            *string                  `json:"notes"`
}

func (h *Handler) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		items, err := h.db.FetchWatchlist()
		if err != nil {
			setErrorResponse("handleWatchlist: failed to fetch watchlist", 500, err, w)
			return
		}

		response := map[string]interface{}{
			"watchlist": items,
		}

		if err := setResponse(response, w); err != nil {
			setErrorResponse("handleWatchlist: failed to set response", 500, err, w)
			return
		}
	case "POST":
		var req AddStockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			setErrorResponse("handleWatchlist: failed to decode request", 400, err, w)
			return
		}

		ticker := models.NewStockSymbol(req.Ticker)
		if err := ticker.Validate(); err != nil {
			setErrorResponse("handleWatchlist: invalid ticker", 400, err, w)
			return
		}

		stock := &models.Stock{
			Ticker:      ticker,
			CompanyName: req.CompanyName,
			Status:      models.StockStatusActive,
		}
		entry := &models.WatchlistEntry{
			MonitoringStatus: models.MonitoringActive,
			Notes:            req.Notes,
		}

		if err := h.db.SaveStock(stock, entry); err != nil {
			if errors.Is(err, data.ErrDuplicateStock) {
				setErrorResponse("handleWatchlist: duplicate ticker", 409, err, w)
				return
			}

			setErrorResponse("handleWatchlist: failed to save stock", 500, err, w)
			return
		}

		response := models.WatchlistItemDTO{
			Ticker:           stock.Ticker,
			CompanyName:      stock.CompanyName,
			Status:           stock.Status,
			MonitoringStatus: entry.MonitoringStatus,
			Notes:            entry.Notes,
		}

		if err := setResponse(response, w); err != nil {
			setErrorResponse("handleWatchlist: failed to set response", 500, err, w)
			return
		}
	default:
		w.WriteHeader(404)
	}
}

func (h *Handler) handleWatchlistItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ticker := models.NewStockSymbol(vars["ticker"])
	if err := ticker.Validate(); err != nil {
		setErrorResponse("handleWatchlistItem: invalid ticker", 400, err, w)
		return
	}

	switch r.Method {
	case "DELETE":
		if err := h.db.RemoveStock(ticker); err != nil {
			if errors.Is(err, data.ErrStockNotFound) {
				setErrorResponse("handleWatchlistItem: unknown ticker", 404, err, w)
				return
			}

			setErrorResponse("handleWatchlistItem: failed to remove stock", 500, err, w)
			return
		}

		response := map[string]interface{}{
			"message": fmt.Sprintf("%s removed from watchlist", ticker),
		}

		if err := setResponse(response, w); err != nil {
			setErrorResponse("handleWatchlistItem: failed to set response", 500, err, w)
			return
		}
	case "PATCH":
		var req UpdateWatchlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			setErrorResponse("handleWatchlistItem: failed to decode request", 400, err, w)
			return
		}

		if req.MonitoringStatus != nil {
			if err := req.MonitoringStatus.Validate(); err != nil {
				setErrorResponse("handleWatchlistItem: invalid monitoring status", 400, err, w)
				return
			}
		}

		entry, err := h.db.UpdateWatchlistEntry(ticker, req.MonitoringStatus, req.Notes)
		if err != nil {
			if errors.Is(err, data.ErrStockNotFound) {
				setErrorResponse("handleWatchlistItem: unknown ticker", 404, err, w)
				return
			}

			setErrorResponse("handleWatchlistItem: failed to update entry", 500, err, w)
			return
		}

		response := map[string]interface{}{
			"ticker":            ticker,
			"monitoring_status": entry.MonitoringStatus,
			"notes":             entry.Notes,
		}

		if err := setResponse(response, w); err != nil {
			setErrorResponse("handleWatchlistItem: failed to set response", 500, err, w)
			return
		}
	default:
		w.WriteHeader(404)
	}
}

func (h *Handler) handleStockPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	vars := mux.Vars(r)

	ticker := models.NewStockSymbol(vars["ticker"])
	if err := ticker.Validate(); err != nil {
		setErrorResponse("handleStockPrice: invalid ticker", 400, err, w)
		return
	}

	stock, err := h.db.FetchStockByTicker(ticker)
	if err != nil {
		if errors.Is(err, data.ErrStockNotFound) {
			setErrorResponse("handleStockPrice: unknown ticker", 404, err, w)
			return
		}

		setErrorResponse("handleStockPrice: failed to fetch stock", 500, err, w)
		return
	}

	quote, err := h.display.GetDisplayPrice(r.Context(), stock)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoPrice) {
			setErrorResponse("handleStockPrice: no price available", 404, err, w)
			return
		}

		setErrorResponse("handleStockPrice: failed to fetch price", 500, err, w)
		return
	}

	response := map[string]interface{}{
		"ticker":    ticker,
		"price":     quote.Price,
		"source":    quote.Source,
		"timestamp": quote.Timestamp,
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleStockPrice: failed to set response", 500, err, w)
		return
	}
}
