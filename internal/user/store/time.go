package store

import (
	"fmt"
	"time"
)

// timeLayouts はテキストとして保存された日時の書式。
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// dbTime はNULLを許容する日時列の読み取り先。
// ドライバが time.Time を返す場合とテキストを返す場合の両方に対応する。
type dbTime struct {
	Time  time.Time
	Valid bool
}

// Scan は sql.Scanner を実装する。
func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("日時として読み取れない型です: %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("日時の形式が不正です: %q", s)
}
