package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/search"
)

// engineSelection はエンジン一覧と保存済みの選択から使用するエンジンを決める。
type engineSelection struct {
	registry *engine.Registry
	prefs    engine.PreferenceStore
}

// current は現在のリクエストで使うエンジンIDを返す。
func (s engineSelection) current(r *http.Request) (string, error) {
	return s.registry.Resolve(s.prefs.Load(r))
}

// selectable は画面の選択肢に表示するエンジンを返す。
// 設定済みのエンジンに加え、選択中のエンジンは未設定でも含める。
func (s engineSelection) selectable(selected string) []engine.Engine {
	var out []engine.Engine
	for _, e := range s.registry.All() {
		if e.Configured() || e.ID == selected {
			out = append(out, e)
		}
	}
	return out
}

// SearchHandler は検索とエンジン選択のAPIハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
	engines engineSelection
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface, registry *engine.Registry, prefs engine.PreferenceStore) *SearchHandler {
	return &SearchHandler{
		service: service,
		engines: engineSelection{registry: registry, prefs: prefs},
	}
}

type engineResponse struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Configured bool   `json:"configured"`
}

type enginesResponse struct {
	Engines  []engineResponse `json:"engines"`
	Selected string           `json:"selected"`
}

type enginePreferenceRequest struct {
	Engine string `json:"engine"`
}

type searchResultResponse struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	HTMLSnippet string `json:"html_snippet"`
	CacheID     string `json:"cache_id,omitempty"`
}

type searchResponse struct {
	Query   string                 `json:"query"`
	Engine  engineResponse         `json:"engine"`
	Results []searchResultResponse `json:"results"`
}

// ListEngines はエンジン一覧と現在の選択を返す。
// GET /api/engines
// エンジンが1つも設定されていない場合、selectedは空文字列。
func (h *SearchHandler) ListEngines(w http.ResponseWriter, r *http.Request) {
	selected, err := h.engines.current(r)
	if err != nil && !errors.Is(err, engine.ErrNoEngineConfigured) {
		handleServiceError(w, err)
		return
	}

	all := h.engines.registry.All()
	resp := enginesResponse{
		Engines:  make([]engineResponse, 0, len(all)),
		Selected: selected,
	}
	for _, e := range all {
		resp.Engines = append(resp.Engines, engineResponse{ID: e.ID, Label: e.Label, Configured: e.Configured()})
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdatePreference はエンジン選択を保存する。
// PUT /api/preferences/engine
func (h *SearchHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	var req enginePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if !h.engines.registry.IsValidID(req.Engine) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEngineError(req.Engine))
		return
	}

	h.engines.prefs.Save(w, req.Engine)
	eng, _ := h.engines.registry.Lookup(req.Engine)
	writeJSON(w, http.StatusOK, engineResponse{ID: eng.ID, Label: eng.Label, Configured: eng.Configured()})
}

// Search は検索を実行する。
// GET /api/search?q=...&engine=1
// engineを省略した場合は保存済みの選択（なければ最初の設定済みエンジン）を使う。
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Query is required"))
		return
	}

	engineID := r.URL.Query().Get("engine")
	if engineID == "" {
		resolved, err := h.engines.current(r)
		if errors.Is(err, engine.ErrNoEngineConfigured) {
			// APIキーの不足はエンジン未設定より先に報告する
			if credErr := h.service.CheckCredentials(); credErr != nil {
				handleServiceError(w, credErr)
				return
			}
			writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewNoEngineConfiguredError())
			return
		}
		if err != nil {
			handleServiceError(w, err)
			return
		}
		engineID = resolved
	} else if !h.engines.registry.IsValidID(engineID) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEngineError(engineID))
		return
	}

	resp, err := h.service.Search(r.Context(), query, engineID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSearchResponse(resp, h.engines.registry))
}

func toSearchResponse(resp *search.Response, registry *engine.Registry) searchResponse {
	eng, _ := registry.Lookup(resp.EngineID)
	out := searchResponse{
		Query:   resp.Query,
		Engine:  engineResponse{ID: resp.EngineID, Label: resp.EngineLabel, Configured: eng.Configured()},
		Results: make([]searchResultResponse, 0, len(resp.Results)),
	}
	for _, res := range resp.Results {
		out.Results = append(out.Results, searchResultResponse{
			Title:       res.Title,
			Link:        res.Link,
			Snippet:     res.Snippet,
			HTMLSnippet: res.HTMLSnippet,
			CacheID:     res.CacheID,
		})
	}
	return out
}
