// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンによる認証ゲートとロールによる認可、リクエストID、
// 構造化リクエストログ、パニックリカバリ、CORS、レート制限など、
// gatewayとuserサービスで共通して使用するミドルウェアを含む。
//
// 認証ゲートの判定は Gate.Check と RequireRole の純粋な関数として実装し、
// Authenticate と Authorize はそれをGinのハンドラチェーンに接続する。
package middleware
