package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed web/templates/*.html
var templateFS embed.FS

//go:embed web/static
var staticFS embed.FS

// pageNames は描画可能なページテンプレート。各ページはbase.htmlと組み合わせて使う。
var pageNames = []string{"auth.html", "home.html"}

// Renderer は埋め込みテンプレートからHTMLページを描画する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は全ページのテンプレートを解析したRendererを生成する。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS,
			"web/templates/base.html",
			"web/templates/"+name,
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// MustNewRenderer はNewRendererのpanic版。テンプレートは埋め込みのため起動時に失敗する。
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render はページをバッファに描画してからレスポンスに書き込む。
// 描画に失敗した場合は部分的なHTMLを返さずに500を返す。
func (rd *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown template", slog.String("template", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	buf := &bytes.Buffer{}
	if err := t.ExecuteTemplate(buf, "base", data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

var templateFuncs = template.FuncMap{
	// safeSnippet はサニタイズ済みのhtmlSnippetをHTMLとして出力する。
	"safeSnippet": func(s string) template.HTML {
		return template.HTML(s) // #nosec G203 -- bluemondayでサニタイズ済み
	},
}

// StaticHandler は埋め込みの静的ファイル（/static/*）を配信する。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "web/static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
