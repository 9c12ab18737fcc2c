package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/links"
	"github.com/hitoshi/searchsaver/internal/middleware"
	"github.com/hitoshi/searchsaver/internal/model"
)

// resultsKeptParam は画面操作後のリダイレクト先に付与するクエリパラメータ。
// 付与された画面は検索を再実行せず、直前の検索結果を表示する。
const resultsKeptParam = "kept"

// ViewHandler はサーバーサイド描画の検索画面を提供する。
// 画面からの操作はフォーム送信で受け付け、完了後は元の画面へ303で戻す。
type ViewHandler struct {
	search   SearchServiceInterface
	links    LinkServiceInterface
	engines  engineSelection
	renderer *Renderer
	results  *resultCache
}

// NewViewHandler はViewHandlerを生成する。
func NewViewHandler(
	searchService SearchServiceInterface,
	linkService LinkServiceInterface,
	registry *engine.Registry,
	prefs engine.PreferenceStore,
	renderer *Renderer,
) *ViewHandler {
	return &ViewHandler{
		search:   searchService,
		links:    linkService,
		engines:  engineSelection{registry: registry, prefs: prefs},
		renderer: renderer,
		results:  newResultCache(resultCacheSize, resultCacheTTL),
	}
}

// homePageData は検索画面のテンプレートデータ。
type homePageData struct {
	PageTitle      string
	CSRFToken      string
	Email          string
	ReturnPath     string
	Query          string
	Searched       bool
	Results        []model.SearchResult
	SearchError    string
	FormError      string
	Engines        []engine.Engine
	SelectedEngine string
	SelectedLabel  string
	NoEngine       string
	Links          []savedLinkView
}

// savedLinkView は保存リンク1件の表示用データ。
type savedLinkView struct {
	ID          string
	Title       string
	URL         string
	Snippet     string
	EngineLabel string
}

// Home は検索画面を表示する。
// GET /?q=...
// qが指定されていれば選択中のエンジンで検索を実行する。
// kept=1 の場合は検索せず、同じセッションの直前の結果があればそれを表示する。
func (h *ViewHandler) Home(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := strings.TrimSpace(params.Get("q"))
	kept := params.Get(resultsKeptParam) == "1"
	h.renderHome(w, r, http.StatusOK, homeState{
		query:     query,
		runSearch: query != "" && !kept,
		reuseKept: query != "" && kept,
	})
}

// SaveLink は検索結果をフォームから保存する。
// POST /links
func (h *ViewHandler) SaveLink(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	returnPath := safeRedirectPath(r.PostFormValue("return"))

	_, err := h.links.Save(r.Context(), userID, links.SaveInput{
		Title:       r.PostFormValue("title"),
		URL:         r.PostFormValue("url"),
		Snippet:     r.PostFormValue("snippet"),
		EngineLabel: h.engines.engineLabel(r, r.PostFormValue("engine")),
	})
	if err != nil {
		h.formFailed(w, r, returnPath, err)
		return
	}

	http.Redirect(w, r, keepResults(returnPath), http.StatusSeeOther)
}

// DeleteLink は保存リンクをフォームから削除する。
// POST /links/{id}/delete
func (h *ViewHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	returnPath := safeRedirectPath(r.PostFormValue("return"))

	if err := h.links.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.formFailed(w, r, returnPath, err)
		return
	}

	http.Redirect(w, r, keepResults(returnPath), http.StatusSeeOther)
}

// SetEngine はエンジン選択をフォームから保存する。
// POST /preferences/engine
func (h *ViewHandler) SetEngine(w http.ResponseWriter, r *http.Request) {
	returnPath := safeRedirectPath(r.PostFormValue("return"))
	engineID := r.PostFormValue("engine")

	if !h.engines.registry.IsValidID(engineID) {
		h.formFailed(w, r, returnPath, model.NewInvalidEngineError(engineID))
		return
	}

	h.engines.prefs.Save(w, engineID)
	http.Redirect(w, r, keepResults(returnPath), http.StatusSeeOther)
}

// formFailed はフォーム操作の失敗を画面にインライン表示する。
// 検索は再実行せず、検索語だけを入力欄に残す。
func (h *ViewHandler) formFailed(w http.ResponseWriter, r *http.Request, returnPath string, err error) {
	apiErr, status := toAPIError(err)
	h.renderHome(w, r, status, homeState{
		query:      queryFromPath(returnPath),
		reuseKept:  true,
		returnPath: returnPath,
		formError:  apiErr.Message,
	})
}

// homeState は検索画面の描画条件。
// runSearchは検索APIを呼び出し、reuseKeptは直前の結果の再表示のみ行う。
type homeState struct {
	query      string
	runSearch  bool
	reuseKept  bool
	returnPath string
	formError  string
}

func (h *ViewHandler) renderHome(w http.ResponseWriter, r *http.Request, status int, st homeState) {
	ctx := r.Context()
	session := middleware.SessionFromContext(ctx)

	data := homePageData{
		PageTitle:  "Search",
		CSRFToken:  middleware.CSRFTokenFromContext(ctx),
		ReturnPath: st.returnPath,
		Query:      st.query,
		FormError:  st.formError,
	}
	if data.ReturnPath == "" {
		data.ReturnPath = safeRedirectPath(r.URL.RequestURI())
	}
	if session != nil {
		data.Email = session.Email
	}
	if st.query != "" {
		data.PageTitle = st.query + " - Search"
	}

	selected, err := h.engines.current(r)
	switch {
	case errors.Is(err, engine.ErrNoEngineConfigured):
		// APIキーの不足はエンジン未設定より先に報告する
		data.NoEngine = model.NewNoEngineConfiguredError().Message
		if credErr := h.search.CheckCredentials(); credErr != nil {
			apiErr, _ := toAPIError(credErr)
			data.NoEngine = apiErr.Message
		}
	case err != nil:
		apiErr, _ := toAPIError(err)
		data.SearchError = apiErr.Message
	default:
		data.SelectedEngine = selected
		data.SelectedLabel = h.engines.registry.Label(selected)
		data.Engines = h.engines.selectable(selected)
	}

	switch {
	case st.query == "" || !(st.runSearch || st.reuseKept):
	case data.SelectedEngine == "":
		data.Searched = true
		if data.SearchError == "" {
			data.SearchError = data.NoEngine
		}
	case st.reuseKept:
		if session == nil {
			break
		}
		if results, ok := h.results.get(session.ID, st.query, data.SelectedEngine); ok {
			data.Searched = true
			data.Results = results
		}
	default:
		data.Searched = true
		resp, err := h.search.Search(ctx, st.query, data.SelectedEngine)
		if err != nil {
			apiErr, _ := toAPIError(err)
			data.SearchError = apiErr.Message
		} else {
			data.Results = resp.Results
			if session != nil {
				h.results.put(session.ID, st.query, data.SelectedEngine, resp.Results)
			}
		}
	}

	if session != nil {
		saved, err := h.links.List(ctx, session.UserID)
		if err != nil {
			apiErr, _ := toAPIError(err)
			if data.FormError == "" {
				data.FormError = apiErr.Message
			}
		}
		data.Links = toSavedLinkViews(saved, data.SelectedLabel)
	}

	h.renderer.Render(w, status, "home.html", data)
}

// toSavedLinkViews は保存リンクを表示用に変換する。
// 保存時のエンジンラベルが空の場合は現在のエンジンのラベルを表示する。
func toSavedLinkViews(saved []*model.SavedLink, fallbackLabel string) []savedLinkView {
	out := make([]savedLinkView, 0, len(saved))
	for _, l := range saved {
		label := l.Engine
		if label == "" {
			label = fallbackLabel
		}
		out = append(out, savedLinkView{
			ID:          l.ID,
			Title:       l.DisplayTitle(),
			URL:         l.URL,
			Snippet:     l.Snippet,
			EngineLabel: label,
		})
	}
	return out
}

// keepResults は検索語を含むローカルパスにkept=1を付与する。
// 検索語がなければそのまま返す。
func keepResults(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	if strings.TrimSpace(q.Get("q")) == "" {
		return path
	}
	q.Set(resultsKeptParam, "1")
	u.RawQuery = q.Encode()
	return u.String()
}

// queryFromPath はローカルパスのクエリからqを取り出す。
func queryFromPath(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("q"))
}
