// Package store はユーザーアカウントをSQLデータベースに永続化する。
//
// database/sql の上にSQLite (modernc.org/sqlite) とPostgreSQL (pgx) の両方を実装する。
// クエリは "?" プレースホルダで記述し、PostgreSQLでは "$n" に変換する。
// メールアドレスの一意性はデータベースの一意制約で保証し、
// 一意制約違反は account.ErrEmailTaken に変換する。
package store
