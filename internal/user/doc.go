// Package user はユーザーサービスのHTTPサーバーを提供する。
//
// アカウントの登録・ログイン・トークン更新と、認証済みユーザーによる
// プロフィール更新・パスワード変更・アカウント無効化、管理者によるユーザー一覧を公開する。
// アクセストークンの検証はこのサービス自身でも行い、gatewayのヘッダーには依存しない。
package user
