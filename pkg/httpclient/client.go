package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// HeaderUserID は認証済みユーザーIDを伝播するヘッダー。
	HeaderUserID = "X-User-ID"
	// HeaderUserEmail は認証済みユーザーのメールアドレスを伝播するヘッダー。
	HeaderUserEmail = "X-User-Email"
	// HeaderUserRole は認証済みユーザーのロールを伝播するヘッダー。
	HeaderUserRole = "X-User-Role"
)

// DefaultTimeout は上流サービス呼び出しのデフォルトタイムアウト。
const DefaultTimeout = 30 * time.Second

// hopHeaders はプロキシで転送しないホップバイホップヘッダー。
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// identityHeaders はgatewayだけが設定できるヘッダー。
var identityHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole}

// Client はサービス間通信用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://user-service:3001"）を指定する。
// timeoutが0以下の場合は DefaultTimeout を使用する。
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// BaseURL は接続先サービスのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	setIdentity(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTPエラー: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// Forward はクライアントからのリクエストを上流サービスへ転送する。
// ホップバイホップヘッダーとクライアントが付与した X-User-* ヘッダーは転送せず、
// contextに認証情報があればそれを X-User-* ヘッダーとして設定する。
// 上流のステータスコードに関わらずレスポンスを返す。呼び出し側でBodyを閉じる必要がある。
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	for _, h := range identityHeaders {
		req.Header.Del(h)
	}
	setIdentity(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	return resp, nil
}

// CopyResponseHeader はホップバイホップヘッダーを除いて上流のレスポンスヘッダーをコピーする。
// dstに同じキーがある場合は上流の値で置き換える。
func CopyResponseHeader(dst, src http.Header) {
	for k, vs := range src {
		if isHopHeader(k) {
			continue
		}
		dst.Del(k)
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(key string) bool {
	key = http.CanonicalHeaderKey(key)
	for _, h := range hopHeaders {
		if key == h {
			return true
		}
	}
	return false
}

// Identity はサービス間で伝播する認証済み利用者の情報。
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyIdentity はコンテキストに利用者情報を格納するためのキー。
const contextKeyIdentity contextKey = "identity"

// WithIdentity はコンテキストに利用者情報を設定する。
// サービス間通信時に利用者情報を伝播するために使用する。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

func setIdentity(ctx context.Context, h http.Header) {
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	if !ok || id.UserID == "" {
		return
	}
	h.Set(HeaderUserID, id.UserID)
	h.Set(HeaderUserEmail, id.Email)
	h.Set(HeaderUserRole, id.Role)
}
