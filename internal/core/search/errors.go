package search

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotIngested はプロジェクトのテーブルが存在しない場合のエラー
var ErrNotIngested = errors.New("codebase not ingested")

// NotIngestedError は取り込まれていないプロジェクトへの検索を表す
type NotIngestedError struct {
	Slug   string
	Tables []string // 見つからなかったテーブル
}

func (e *NotIngestedError) Error() string {
	return fmt.Sprintf("tables [%s] not found for codebase '%s'. Please ingest it first",
		strings.Join(e.Tables, ", "), e.Slug)
}

// Is は errors.Is(err, ErrNotIngested) を満たす
func (e *NotIngestedError) Is(target error) bool {
	return target == ErrNotIngested
}
