package watcher

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	var fired atomic.Int32
	d := newDebouncer(20*time.Millisecond, func(string) {
		fired.Add(1)
	})

	// 書き込み中の連続イベントは1回の発火にまとまる
	d.Trigger("/watch/report.txt")
	d.Trigger("/watch/report.txt")
	d.Trigger("/watch/report.txt")

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_RemovesEntryAfterFiring(t *testing.T) {
	var fired atomic.Int32
	d := newDebouncer(10*time.Millisecond, func(string) {
		fired.Add(1)
	})

	d.Trigger("/watch/a.txt")
	d.Trigger("/watch/b.txt")

	// 発火後はエントリが残らず、長期実行でもマップは成長しない
	require.Eventually(t, func() bool {
		return fired.Load() == 2 && d.pendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	// 同じパスを再トリガーすると再び発火する
	d.Trigger("/watch/a.txt")
	require.Eventually(t, func() bool {
		return fired.Load() == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, d.pendingCount())
}
