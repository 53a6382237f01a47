// Package event はアカウント監査イベントの型を定義する。
//
// イベントは追記のみの不変レコードであり、userサービスが account_events テーブルに記録する。
// 記録の失敗は本来の操作を失敗させない。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザーアカウントを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeUserRegistered はアカウントが登録されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
	// TypeUserLoggedIn はログインに成功したことを表す。
	TypeUserLoggedIn Type = "UserLoggedIn"
	// TypePasswordChanged はパスワードが変更されたことを表す。
	TypePasswordChanged Type = "PasswordChanged"
	// TypeProfileUpdated はプロフィールが更新されたことを表す。
	TypeProfileUpdated Type = "ProfileUpdated"
	// TypeAccountDeactivated はアカウントが無効化されたことを表す。
	TypeAccountDeactivated Type = "AccountDeactivated"
)

// Event は不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregateId"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregateType"`
	// EventType はイベントの種類。
	EventType Type `json:"eventType"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"createdAt"`
}

// UserRegisteredData はUserRegisteredイベントのデータ。
type UserRegisteredData struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserLoggedInData はUserLoggedInイベントのデータ。
type UserLoggedInData struct {
	// ClientIP はログイン元のIPアドレス。
	ClientIP string `json:"clientIp,omitempty"`
}

// PasswordChangedData はPasswordChangedイベントのデータ。
type PasswordChangedData struct{}

// ProfileUpdatedData はProfileUpdatedイベントのデータ。
type ProfileUpdatedData struct {
	// Fields は変更されたフィールド名。
	Fields []string `json:"fields"`
}

// AccountDeactivatedData はAccountDeactivatedイベントのデータ。
type AccountDeactivatedData struct{}
