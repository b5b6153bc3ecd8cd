package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// lockID はテーブル名からアドバイザリロックのキーを生成する
func lockID(table string) int64 {
	sum := sha256.Sum256([]byte("codeqa:" + table))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// lockTable は同じテーブルへの DDL を直列化する。
// pg_advisory_xact_lock を使うためトランザクション終了時に解放される
func lockTable(ctx context.Context, tx pgx.Tx, table string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID(table)); err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", table, err)
	}
	return nil
}
