// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// アクセストークンを検証し、利用者情報を X-User-* ヘッダーとして付与したうえで
// リクエストをユーザー・商品・注文の各サービスに転送する。
// Gatewayは検証鍵のみを持ち、トークンを発行しない。
package gateway
