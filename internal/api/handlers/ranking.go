package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/qiyuan/conceptrank/backend/internal/compute"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
	"github.com/qiyuan/conceptrank/backend/pkg/redis"
)

// RankingHandler serves derived concept rankings and summaries
// ⭐ SSOT: 排名 API 处理只在这个结构体
type RankingHandler struct {
	repo   *compute.Repository
	cache  *redis.Cache
	logger *logger.Logger
}

// NewRankingHandler creates a new ranking handler
func NewRankingHandler(repo *compute.Repository, cache *redis.Cache, log *logger.Logger) *RankingHandler {
	return &RankingHandler{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

// RankingItem is one ranked stock in a concept.
type RankingItem struct {
	Rank       int      `json:"rank"`
	StockCode  string   `json:"stock_code"`
	TradeValue int64    `json:"trade_value"`
	Percentile *float64 `json:"percentile"`
}

// RankingResponse is the payload of GET /api/rankings/{conceptID}.
type RankingResponse struct {
	ConceptID   int64         `json:"concept_id"`
	MetricCode  string        `json:"metric_code"`
	TradeDate   string        `json:"trade_date"`
	TotalStocks int           `json:"total_stocks"`
	Rankings    []RankingItem `json:"rankings"`
}

// SummaryResponse is the payload of GET /api/summaries/{conceptID}.
type SummaryResponse struct {
	ConceptID   int64  `json:"concept_id"`
	MetricCode  string `json:"metric_code"`
	TradeDate   string `json:"trade_date"`
	TotalValue  int64  `json:"total_value"`
	AvgValue    int64  `json:"avg_value"`
	MaxValue    int64  `json:"max_value"`
	MinValue    int64  `json:"min_value"`
	MedianValue int64  `json:"median_value"`
	Top10Sum    int64  `json:"top10_sum"`
	StockCount  int    `json:"stock_count"`
}

// GetRankings returns a concept's stock ranking for one metric/date.
// GET /api/rankings/{conceptID}?metric=netinflow&date=2024-01-15
// Date defaults to the metric's latest computed slice.
func (h *RankingHandler) GetRankings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conceptID, metricCode, date, ok := h.queryParams(w, r)
	if !ok {
		return
	}

	dateStr := date.Format("2006-01-02")

	var resp RankingResponse
	err := h.cache.GetOrSet(ctx, redis.RankingKey(metricCode, conceptID, dateStr), &resp, redis.TTLMedium, func() (interface{}, error) {
		rankings, err := h.repo.RankingsForConcept(ctx, conceptID, metricCode, date)
		if err != nil {
			return nil, err
		}

		resp := RankingResponse{
			ConceptID:  conceptID,
			MetricCode: metricCode,
			TradeDate:  dateStr,
			Rankings:   make([]RankingItem, 0, len(rankings)),
		}
		for _, rk := range rankings {
			resp.TotalStocks = rk.TotalStocks
			resp.Rankings = append(resp.Rankings, RankingItem{
				Rank:       rk.Rank,
				StockCode:  rk.StockCode,
				TradeValue: rk.TradeValue,
				Percentile: rk.Percentile,
			})
		}
		return resp, nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to query rankings")
		respondError(w, http.StatusInternalServerError, "Failed to query rankings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    resp,
	})
}

// GetSummary returns a concept's aggregate for one metric/date.
// GET /api/summaries/{conceptID}?metric=netinflow&date=2024-01-15
func (h *RankingHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conceptID, metricCode, date, ok := h.queryParams(w, r)
	if !ok {
		return
	}

	dateStr := date.Format("2006-01-02")

	var resp SummaryResponse
	err := h.cache.GetOrSet(ctx, redis.SummaryKey(metricCode, conceptID, dateStr), &resp, redis.TTLMedium, func() (interface{}, error) {
		summary, err := h.repo.SummaryForConcept(ctx, conceptID, metricCode, date)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			return SummaryResponse{ConceptID: conceptID, MetricCode: metricCode, TradeDate: dateStr}, nil
		}
		return SummaryResponse{
			ConceptID:   conceptID,
			MetricCode:  metricCode,
			TradeDate:   dateStr,
			TotalValue:  summary.TotalValue,
			AvgValue:    summary.AvgValue,
			MaxValue:    summary.MaxValue,
			MinValue:    summary.MinValue,
			MedianValue: summary.MedianValue,
			Top10Sum:    summary.Top10Sum,
			StockCount:  summary.StockCount,
		}, nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to query summary")
		respondError(w, http.StatusInternalServerError, "Failed to query summary")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    resp,
	})
}

// queryParams pulls conceptID, metric and date out of the request,
// resolving a missing date to the metric's latest computed slice.
func (h *RankingHandler) queryParams(w http.ResponseWriter, r *http.Request) (int64, string, time.Time, bool) {
	ctx := r.Context()

	conceptID, err := strconv.ParseInt(mux.Vars(r)["conceptID"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid concept id")
		return 0, "", time.Time{}, false
	}

	metricCode := r.URL.Query().Get("metric")
	if metricCode == "" {
		respondError(w, http.StatusBadRequest, "Missing metric query parameter")
		return 0, "", time.Time{}, false
	}

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date (want YYYY-MM-DD)")
			return 0, "", time.Time{}, false
		}
		return conceptID, metricCode, date, true
	}

	latest, err := h.repo.LatestDate(ctx, metricCode)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve latest date")
		respondError(w, http.StatusInternalServerError, "Failed to resolve latest date")
		return 0, "", time.Time{}, false
	}
	if latest == nil {
		respondError(w, http.StatusNotFound, "No computed data for metric "+metricCode)
		return 0, "", time.Time{}, false
	}

	return conceptID, metricCode, *latest, true
}
