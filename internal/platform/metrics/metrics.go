// Package metrics は取り込みと検索の Prometheus メトリクスを提供する。
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinford/codeqa/internal/core/ingestion"
	"github.com/jinford/codeqa/internal/core/search"
)

// Recorder は ingestion.Metrics と search.Metrics を Prometheus に記録する
type Recorder struct {
	scannedFiles  *prometheus.CounterVec
	entities      *prometheus.CounterVec
	droppedRows   prometheus.Counter
	failures      prometheus.Counter
	stageDuration *prometheus.HistogramVec

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// インターフェース実装の確認
var (
	_ ingestion.Metrics = (*Recorder)(nil)
	_ search.Metrics    = (*Recorder)(nil)
)

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// Default はデフォルトレジストリに一度だけ登録した Recorder を返す
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = New(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// New は reg にメトリクスを登録した Recorder を作成する
func New(reg prometheus.Registerer) *Recorder {
	buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

	r := &Recorder{
		scannedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeqa_ingest_scanned_files_total",
			Help: "スキャンしたファイル数（kind=source|special）",
		}, []string{"kind"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeqa_ingest_entities_total",
			Help: "抽出したエンティティ数（kind=class|method）",
		}, []string{"kind"}),
		droppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeqa_ingest_dropped_rows_total",
			Help: "不正なベクトルのため破棄した行数",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeqa_ingest_failures_total",
			Help: "失敗した取り込み回数",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeqa_ingest_stage_seconds",
			Help:    "取り込みステージごとの所要時間",
			Buckets: buckets,
		}, []string{"stage"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeqa_queries_total",
			Help: "結果別の検索回数（outcome=ok|not_ingested|error）",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeqa_query_seconds",
			Help:    "検索の所要時間",
			Buckets: buckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		r.scannedFiles, r.entities, r.droppedRows, r.failures, r.stageDuration,
		r.queries, r.queryDuration,
	)
	return r
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) AddScanned(sourceFiles, specialFiles int) {
	r.scannedFiles.WithLabelValues("source").Add(float64(sourceFiles))
	r.scannedFiles.WithLabelValues("special").Add(float64(specialFiles))
}

func (r *Recorder) AddEntities(classes, methods int) {
	r.entities.WithLabelValues("class").Add(float64(classes))
	r.entities.WithLabelValues("method").Add(float64(methods))
}

func (r *Recorder) AddDroppedRows(n int) {
	r.droppedRows.Add(float64(n))
}

func (r *Recorder) IncFailure() {
	r.failures.Inc()
}

func (r *Recorder) ObserveQuery(outcome string, d time.Duration) {
	r.queries.WithLabelValues(outcome).Inc()
	r.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Serve は addr で /metrics を公開し、ctx が終了するまでブロックする
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("メトリクスを公開します", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
