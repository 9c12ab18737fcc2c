package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/links"
	"github.com/hitoshi/searchsaver/internal/middleware"
	"github.com/hitoshi/searchsaver/internal/model"
)

// streamKeepAlive はSSE接続を維持するためのコメント送信間隔。
const streamKeepAlive = 25 * time.Second

// LinkHandler は保存リンクのAPIハンドラー。
type LinkHandler struct {
	service LinkServiceInterface
	engines engineSelection
}

// NewLinkHandler はLinkHandlerを生成する。
func NewLinkHandler(service LinkServiceInterface, registry *engine.Registry, prefs engine.PreferenceStore) *LinkHandler {
	return &LinkHandler{
		service: service,
		engines: engineSelection{registry: registry, prefs: prefs},
	}
}

// linkResponse は保存リンクのAPIレスポンス。
type linkResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DisplayTitle string    `json:"display_title"`
	URL          string    `json:"url"`
	Snippet      string    `json:"snippet"`
	Engine       string    `json:"engine"`
	CreatedAt    time.Time `json:"created_at"`
}

type linkListResponse struct {
	Links []linkResponse `json:"links"`
}

// saveLinkRequest はリンク保存リクエストのボディ。
// engineはエンジンID。省略時は現在の選択のラベルを記録する。
type saveLinkRequest struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
}

func toLinkResponse(l *model.SavedLink) linkResponse {
	return linkResponse{
		ID:           l.ID,
		Title:        l.Title,
		DisplayTitle: l.DisplayTitle(),
		URL:          l.URL,
		Snippet:      l.Snippet,
		Engine:       l.Engine,
		CreatedAt:    l.CreatedAt,
	}
}

func toLinkListResponse(saved []*model.SavedLink) linkListResponse {
	out := linkListResponse{Links: make([]linkResponse, 0, len(saved))}
	for _, l := range saved {
		out.Links = append(out.Links, toLinkResponse(l))
	}
	return out
}

// engineLabel は保存時に記録するエンジンラベルを決める。
// 既知のIDが指定されればそのラベル、それ以外は現在の選択のラベル。
func (s engineSelection) engineLabel(r *http.Request, engineID string) string {
	if s.registry.IsValidID(engineID) {
		return s.registry.Label(engineID)
	}
	current, err := s.current(r)
	if err != nil {
		return ""
	}
	return s.registry.Label(current)
}

// List は保存リンクを新しい順で返す。
// GET /api/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	saved, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLinkListResponse(saved))
}

// Save は検索結果を保存する。
// POST /api/links
func (h *LinkHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req saveLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	link, err := h.service.Save(r.Context(), userID, links.SaveInput{
		Title:       req.Title,
		URL:         req.URL,
		Snippet:     req.Snippet,
		EngineLabel: h.engines.engineLabel(r, req.Engine),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLinkResponse(link))
}

// Delete は保存リンクを削除する。
// DELETE /api/links/{id}
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream は保存リストのスナップショットをServer-Sent Eventsで配信する。
// GET /api/links/stream
// 接続直後に現在のリストを、以降は変更のたびに全件を "snapshot" イベントとして送る。
func (h *LinkHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	rc := http.NewResponseController(w)

	sub, err := h.service.Subscribe(r.Context(), session.UserID, session.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer sub.Close()

	// 長時間接続のためサーバーの書き込みタイムアウトを解除する
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("write deadline not supported", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-sub.Updates():
			if !ok {
				// ログアウト等で購読が解放された
				return
			}
			if err := writeSnapshotEvent(w, snapshot); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeSnapshotEvent はスナップショットを1つのSSEイベントとして書き込む。
func writeSnapshotEvent(w http.ResponseWriter, snapshot []*model.SavedLink) error {
	data, err := json.Marshal(toLinkListResponse(snapshot))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}
