// Package openai はOpenAI APIによる埋め込み・テキスト生成クライアントを提供する
package openai

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
)

const (
	// DefaultMaxRetries は一時的な失敗に対する最大リトライ回数
	DefaultMaxRetries = 3

	// DefaultBaseBackoff はExponential Backoffの基底時間
	DefaultBaseBackoff = 2 * time.Second

	// DefaultMaxBackoff はExponential Backoffの最大待機時間
	DefaultMaxBackoff = 32 * time.Second
)

// RetryPolicy はプロバイダ呼び出しのリトライ方針
// インラインの制御フローではなくクライアントのパラメータとして渡す
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy はデフォルトのリトライ方針を返す
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// wait はattempt回目（1起点）のリトライ前にバックオフ時間だけ待機する
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.BaseBackoff
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

// isTransient はリトライに値する一時的な失敗かどうかを判定する
// レート制限(429)・サーバーエラー(5xx)・タイムアウトを一時的とみなす
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}
