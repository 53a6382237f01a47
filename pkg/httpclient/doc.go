// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// gatewayが上流サービスへリクエストを転送する際と、
// 上流サービスの死活確認を行う際に使用する。
// 認証済みの利用者情報はcontext経由で X-User-* ヘッダーとして伝播する。
package httpclient
