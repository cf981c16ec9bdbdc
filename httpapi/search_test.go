package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/distsearch"
	"github.com/BaSui01/wayfarer/ranking"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	fanout := &distsearch.Fanout{
		CollectorTopN: 10,
		Shards: []distsearch.Shard{
			{ID: 1, Search: func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error) {
				return []ranking.Ranked{
					{DocID: 1, ShardID: 1, Score: ranking.Score{Total: 3.0}},
					{DocID: 2, ShardID: 1, Score: ranking.Score{Total: 1.0}},
				}, nil
			}},
		},
	}
	return NewHandler(fanout, nil, nil, nil, zap.NewNop())
}

func doSearch(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/beta/api/search", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchEmptyQueryReturns400(t *testing.T) {
	h := testHandler(t)
	rec := doSearch(t, h, `{"query":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, `"empty query"`, rec.Body.String())
}

func TestSearchReturnsWebsites(t *testing.T) {
	h := testHandler(t)
	rec := doSearch(t, h, `{"query":"golang","num_results":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebsitesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "websites", resp.Type)
	require.Len(t, resp.Webpages, 2)
	require.Equal(t, uint64(1), resp.Webpages[0].DocID)
}

func TestSearchBangRedirectsWithoutFanout(t *testing.T) {
	h := testHandler(t)
	rec := doSearch(t, h, `{"query":"!g golang tutorial"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BangResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bang", resp.Type)
	require.Contains(t, resp.RedirectURL, "golang+tutorial")
}

func TestSearchRejectsInvalidOptic(t *testing.T) {
	h := testHandler(t)
	rec := doSearch(t, h, `{"query":"golang","optic":"Rule { "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchCapsNumResults(t *testing.T) {
	h := testHandler(t)
	rec := doSearch(t, h, `{"query":"golang","num_results":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

// storedBody is the minimal shape a storage-layer BodyFetcher is
// expected to return: something that knows its own source address.
type storedBody struct {
	Title string
	URL   string
}

func (b storedBody) PageURL() string { return b.URL }

func TestSearchHydratesDomainAndHomepageFromBody(t *testing.T) {
	fanout := &distsearch.Fanout{
		CollectorTopN: 10,
		Shards: []distsearch.Shard{
			{ID: 1, Search: func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error) {
				return []ranking.Ranked{{DocID: 1, ShardID: 1, Score: ranking.Score{Total: 3.0}}}, nil
			}},
		},
	}
	fetchBody := func(ctx context.Context, shardID, docID uint64) (interface{}, error) {
		return storedBody{Title: "Go", URL: "https://golang.org/"}, nil
	}
	h := NewHandler(fanout, fetchBody, nil, nil, zap.NewNop())

	rec := doSearch(t, h, `{"query":"golang","num_results":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebsitesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Webpages, 1)
	require.Equal(t, "golang.org", resp.Webpages[0].Domain)
	require.True(t, resp.Webpages[0].IsHomepage)
}
