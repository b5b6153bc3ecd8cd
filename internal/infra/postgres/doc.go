// Package postgres は PostgreSQL と pgvector によるサーバ型のベクトルストアを提供する。
//
// テーブル名はスラッグから {slug}_method / {slug}_class として作られる。
// PostgreSQL は 63 バイトを超える識別子を切り詰めるため、長いスラッグ同士は衝突しうる。
package postgres
