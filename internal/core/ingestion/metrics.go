package ingestion

import "time"

// Metrics は取り込み処理の計測値を受け取る
type Metrics interface {
	ObserveStage(stage string, d time.Duration)
	AddScanned(sourceFiles, specialFiles int)
	AddEntities(classes, methods int)
	AddDroppedRows(n int)
	IncFailure()
}

type noopMetrics struct{}

func (noopMetrics) ObserveStage(string, time.Duration) {}
func (noopMetrics) AddScanned(int, int)                {}
func (noopMetrics) AddEntities(int, int)               {}
func (noopMetrics) AddDroppedRows(int)                 {}
func (noopMetrics) IncFailure()                        {}
