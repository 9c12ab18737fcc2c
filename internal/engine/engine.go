// Package engine は検索エンジン（Custom Search Engine ID）の選択を管理する。
package engine

import (
	"errors"

	"github.com/hitoshi/searchsaver/internal/config"
)

// エンジンID。画面・API・Cookieで共通に使う。
const (
	ID1 = "1"
	ID2 = "2"
)

// ErrNoEngineConfigured はエンジンが1つも設定されていない場合のエラー。
var ErrNoEngineConfigured = errors.New("no search engine configured")

// Engine は選択可能な検索エンジン1件を表す。
type Engine struct {
	ID    string
	CX    string
	Label string
}

// Configured はCXが設定されているかを返す。
func (e Engine) Configured() bool {
	return e.CX != ""
}

// Registry は2つの検索エンジンの設定を保持する。起動後は変更しない。
type Registry struct {
	engines []Engine
}

// NewRegistry は設定からRegistryを生成する。
func NewRegistry(cfg *config.Config) *Registry {
	return NewRegistryFromEngines(
		Engine{ID: ID1, CX: cfg.Engine1CX, Label: cfg.Engine1Label},
		Engine{ID: ID2, CX: cfg.Engine2CX, Label: cfg.Engine2Label},
	)
}

// NewRegistryFromEngines は任意のエンジン一覧からRegistryを生成する。
// ラベルが空の場合は "Engine <ID>" を補う。
func NewRegistryFromEngines(engines ...Engine) *Registry {
	r := &Registry{engines: make([]Engine, 0, len(engines))}
	for _, e := range engines {
		if e.Label == "" {
			e.Label = "Engine " + e.ID
		}
		r.engines = append(r.engines, e)
	}
	return r
}

// All は全エンジンを定義順で返す。未設定のエンジンも含む。
func (r *Registry) All() []Engine {
	out := make([]Engine, len(r.engines))
	copy(out, r.engines)
	return out
}

// Lookup はIDに対応するエンジンを返す。
func (r *Registry) Lookup(id string) (Engine, bool) {
	for _, e := range r.engines {
		if e.ID == id {
			return e, true
		}
	}
	return Engine{}, false
}

// IsValidID はIDが既知のエンジンかを返す。
func (r *Registry) IsValidID(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Label はIDに対応する表示ラベルを返す。未知のIDの場合はIDをそのまま返す。
func (r *Registry) Label(id string) string {
	if e, ok := r.Lookup(id); ok {
		return e.Label
	}
	return id
}

// Resolve は使用するエンジンIDを決定する。
// 優先順位: 保存済みの選択（既知のID） → 最初に設定済みのエンジン。
// 保存済みの選択は未設定エンジンでも尊重する（検索時に設定不足エラーを表示するため）。
func (r *Registry) Resolve(stored string) (string, error) {
	if r.IsValidID(stored) {
		return stored, nil
	}
	for _, e := range r.engines {
		if e.Configured() {
			return e.ID, nil
		}
	}
	return "", ErrNoEngineConfigured
}
