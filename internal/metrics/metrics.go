// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 検索結果の分類
const (
	OutcomeSuccess     = "success"
	OutcomeConfigError = "config_error"
	OutcomeError       = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 検索ディスパッチャと保存リストのサービス層から利用する。
type MetricsCollector interface {
	RecordSearch(engineID, outcome string)
	RecordSearchLatency(duration time.Duration)
	RecordUpstreamStatus(statusCode int)
	RecordLinkSaved()
	RecordLinkDeleted()
	RecordSnapshotPushed()
	SubscriptionOpened()
	SubscriptionClosed()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	searches       *prometheus.CounterVec
	searchLatency  prometheus.Histogram
	upstreamStatus *prometheus.CounterVec
	linksSaved     prometheus.Counter
	linksDeleted   prometheus.Counter
	snapshots      prometheus.Counter
	liveSubs       prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchsaver_searches_total",
			Help: "エンジン・結果別の検索実行数",
		}, []string{"engine", "outcome"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchsaver_search_latency_seconds",
			Help:    "Custom Search API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchsaver_search_upstream_status_total",
			Help: "Custom Search APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		linksSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchsaver_links_saved_total",
			Help: "保存されたリンクの合計数",
		}),
		linksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchsaver_links_deleted_total",
			Help: "削除されたリンクの合計数",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchsaver_snapshots_pushed_total",
			Help: "購読者へ配信した保存リストのスナップショット数",
		}),
		liveSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchsaver_live_subscriptions",
			Help: "現在開いているライブ購読の数",
		}),
	}

	reg.MustRegister(
		c.searches,
		c.searchLatency,
		c.upstreamStatus,
		c.linksSaved,
		c.linksDeleted,
		c.snapshots,
		c.liveSubs,
	)

	return c
}

// RecordSearch は検索の実行結果を記録する。
func (c *Collector) RecordSearch(engineID, outcome string) {
	c.searches.WithLabelValues(engineID, outcome).Inc()
}

// RecordSearchLatency は検索APIのレイテンシを記録する。
func (c *Collector) RecordSearchLatency(duration time.Duration) {
	c.searchLatency.Observe(duration.Seconds())
}

// RecordUpstreamStatus は検索APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordLinkSaved()      { c.linksSaved.Inc() }
func (c *Collector) RecordLinkDeleted()    { c.linksDeleted.Inc() }
func (c *Collector) RecordSnapshotPushed() { c.snapshots.Inc() }
func (c *Collector) SubscriptionOpened()   { c.liveSubs.Inc() }
func (c *Collector) SubscriptionClosed()   { c.liveSubs.Dec() }

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordSearch(string, string)       {}
func (Nop) RecordSearchLatency(time.Duration) {}
func (Nop) RecordUpstreamStatus(int)          {}
func (Nop) RecordLinkSaved()                  {}
func (Nop) RecordLinkDeleted()                {}
func (Nop) RecordSnapshotPushed()             {}
func (Nop) SubscriptionOpened()               {}
func (Nop) SubscriptionClosed()               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
