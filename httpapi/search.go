// Package httpapi implements the single in-scope HTTP endpoint named
// by §6, `POST /beta/api/search`, plus stub routes for the rest of the
// JSON HTTP surface — the widget/sidebar/spellcheck/entity-image
// endpoints are external collaborators per §1 and are not implemented
// here beyond acknowledging the boundary.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/api/handlers"
	"github.com/BaSui01/wayfarer/distsearch"
	"github.com/BaSui01/wayfarer/internal/ctxkeys"
	"github.com/BaSui01/wayfarer/optic"
	"github.com/BaSui01/wayfarer/ranking"
	"github.com/BaSui01/wayfarer/searchcache"
	"github.com/BaSui01/wayfarer/webpage"
)

// SearchQuery is the JSON request body for POST /beta/api/search,
// carrying the full field set §6/§4.1 names.
type SearchQuery struct {
	Query                 string             `json:"query"`
	Page                  int                `json:"page"`
	NumResults            int                `json:"num_results"`
	SelectedRegion        uint64             `json:"selected_region"`
	Optic                 string             `json:"optic,omitempty"`
	HostRankings          *optic.HostRankings `json:"host_rankings,omitempty"`
	SafeSearch            bool               `json:"safe_search"`
	SignalCoefficients    map[string]float64 `json:"signal_coefficients,omitempty"`
	ReturnRankingSignals  bool               `json:"return_ranking_signals"`
	FlattenResponse       bool               `json:"flatten_response"`
	CountResultsExact     bool               `json:"count_results_exact"`
	ReturnStructuredData  bool               `json:"return_structured_data"`
}

// MaxNumResults is §6's "num_results ≤ 100" cap.
const MaxNumResults = 100

// WebsiteResult is one ranked, body-hydrated hit in a websites response.
type WebsiteResult struct {
	DocID          uint64          `json:"doc_id"`
	ShardID        uint64          `json:"shard_id"`
	Score          float64         `json:"score"`
	RankingSignals *ranking.Score  `json:"ranking_signals,omitempty"`
	Body           interface{}     `json:"body,omitempty"`
	Domain         string          `json:"domain,omitempty"`
	IsHomepage     bool            `json:"is_homepage,omitempty"`
}

// urlBody is implemented by a BodyFetcher result that knows the
// address it was retrieved from — the storage layer's concern, not
// this package's, but when present it lets a result carry the
// registrable domain and homepage flag §6 derives from a URL.
type urlBody interface {
	PageURL() string
}

// displayFields derives the §6 URL-normalization fields for body, or
// the zero values if body doesn't expose a source address.
func displayFields(body interface{}) (domain string, isHomepage bool) {
	ub, ok := body.(urlBody)
	if !ok {
		return "", false
	}
	u, err := webpage.Parse(ub.PageURL())
	if err != nil {
		return "", false
	}
	return u.Domain(), u.IsHomepage()
}

// WebsitesResponse is the `{ "_type": "websites", ... }` response shape.
type WebsitesResponse struct {
	Type       string          `json:"_type"`
	Webpages   []WebsiteResult `json:"webpages"`
	HasMore    bool            `json:"has_more"`
	NumResults int             `json:"num_hits,omitempty"`
}

// BangResponse is the `{ "_type": "bang", ... }` response shape for a
// query resolved to a bang redirect (e.g. "!g golang") rather than a
// ranked result set.
type BangResponse struct {
	Type        string `json:"_type"`
	RedirectURL string `json:"redirect_to"`
}

// bangTargets is the closed set of bang prefixes this deployment
// recognizes; unknown bangs fall through to a normal search.
var bangTargets = map[string]string{
	"!g": "https://www.google.com/search?q=",
	"!w": "https://en.wikipedia.org/wiki/Special:Search?search=",
}

// Shard runs a query against one search shard or live-index replica —
// an alias of distsearch.Shard so callers of this package don't need
// to import distsearch just to build a Handler.
type Shard = distsearch.Shard

// Handler serves POST /beta/api/search by fanning out to every
// configured shard, merging and hydrating the survivors, and caching
// the response by query (§4.11, §6).
type Handler struct {
	Fanout              *distsearch.Fanout
	FetchBody           distsearch.BodyFetcher
	DefaultCoefficients map[ranking.Signal]float64
	Cache               *searchcache.Cache
	Logger              *zap.Logger
	Now                 func() time.Time
}

// NewHandler constructs a Handler with the given shard fan-out config.
func NewHandler(fanout *distsearch.Fanout, fetchBody distsearch.BodyFetcher, defaults map[ranking.Signal]float64, cache *searchcache.Cache, logger *zap.Logger) *Handler {
	return &Handler{
		Fanout:              fanout,
		FetchBody:           fetchBody,
		DefaultCoefficients: defaults,
		Cache:               cache,
		Logger:              logger,
		Now:                 time.Now,
	}
}

// ServeHTTP implements POST /beta/api/search (§6).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handlers.WriteErrorMessage(w, http.StatusMethodNotAllowed, handlers.ErrInvalidRequest, "method not allowed", h.Logger)
		return
	}

	var q SearchQuery
	if err := handlers.DecodeJSONBody(w, r, &q, h.Logger); err != nil {
		return
	}

	query := strings.TrimSpace(q.Query)
	if query == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`"empty query"`))
		return
	}

	if redirect, ok := resolveBang(query); ok {
		handlers.WriteJSON(w, http.StatusOK, BangResponse{Type: "bang", RedirectURL: redirect})
		return
	}

	page := q.Page
	if page < 0 {
		page = 0
	}
	numResults := q.NumResults
	if numResults <= 0 {
		numResults = 20
	}
	if numResults > MaxNumResults {
		numResults = MaxNumResults
	}
	offset := page * numResults

	if q.Optic != "" {
		if _, err := optic.Parse(q.Optic); err != nil {
			handlers.WriteErrorMessage(w, http.StatusBadRequest, handlers.ErrInvalidRequest, "invalid optic", h.Logger)
			return
		}
	}

	ctx := r.Context()
	if queryID := generateQueryID(h.Now); queryID != "" {
		ctx = ctxkeys.WithQueryID(ctx, queryID)
	}

	cacheKey := searchcache.QueryKey{
		Query: query, Page: page, NumResults: numResults,
		SelectedRegion: fmt.Sprintf("%d", q.SelectedRegion), Optic: q.Optic,
		SafeSearch: q.SafeSearch, SignalCoefficients: q.SignalCoefficients,
	}
	if q.HostRankings != nil {
		cacheKey.HostRankings = append(append(append([]string{}, q.HostRankings.Liked...), q.HostRankings.Disliked...), q.HostRankings.Blocked...)
	}
	if h.Cache != nil {
		var cached WebsitesResponse
		if ok, err := h.Cache.Get(ctx, cacheKey, &cached); err == nil && ok {
			handlers.WriteJSON(w, http.StatusOK, cached)
			return
		}
	}

	results, hasMore, err := h.Fanout.Run(ctx, query, offset, numResults)
	if err != nil {
		h.internalError(w, ctx, "shard fan-out failed", err)
		return
	}

	var bodies []interface{}
	if h.FetchBody != nil && len(results) > 0 {
		bodies, err = distsearch.FetchBodies(ctx, results, h.FetchBody)
		if err != nil {
			h.internalError(w, ctx, "body fetch failed", err)
			return
		}
	}

	webpages := make([]WebsiteResult, 0, len(results))
	for i, res := range results {
		wr := WebsiteResult{DocID: res.DocID, ShardID: res.ShardID, Score: res.Score.Total}
		if q.ReturnRankingSignals {
			s := res.Score
			wr.RankingSignals = &s
		}
		if bodies != nil {
			wr.Body = bodies[i]
			wr.Domain, wr.IsHomepage = displayFields(bodies[i])
		}
		webpages = append(webpages, wr)
	}

	resp := WebsitesResponse{Type: "websites", Webpages: webpages, HasMore: hasMore}
	if q.CountResultsExact {
		resp.NumResults = len(webpages)
	}

	if h.Cache != nil {
		if err := h.Cache.Set(ctx, cacheKey, resp); err != nil {
			h.Logger.Warn("search cache set failed", zap.Error(err))
		}
	}

	handlers.WriteJSON(w, http.StatusOK, resp)
}

// internalError logs err with a correlation id and writes an opaque
// 500 — the HTTP API never leaks internal error text (§7 "User-visible
// failure").
func (h *Handler) internalError(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	correlationID, _ := ctxkeys.QueryID(ctx)
	h.Logger.Error(msg, zap.String("correlation_id", correlationID), zap.Error(err))
	handlers.WriteJSON(w, http.StatusInternalServerError, handlers.Response{
		Success: false,
		Error: &handlers.ErrorInfo{
			Code:    string(handlers.ErrInternalError),
			Message: "internal error",
		},
		RequestID: correlationID,
	})
}

func resolveBang(query string) (string, bool) {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "", false
	}
	target, ok := bangTargets[strings.ToLower(fields[0])]
	if !ok {
		return "", false
	}
	rest := strings.Join(fields[1:], " ")
	return target + strings.ReplaceAll(rest, " ", "+"), true
}

func generateQueryID(now func() time.Time) string {
	if now == nil {
		return ""
	}
	return now().Format("20060102T150405.000000000")
}
