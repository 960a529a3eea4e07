// Package worker は鍵生成や ID 解決を並行実行するワーカープールを提供する。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"

	"xdp-service/internal/domain"
)

// DefaultServiceTimeout は RunAsService の既定の期限。
const DefaultServiceTimeout = 10 * time.Second

// Pool は pond のプールを包んだワーカープール。
type Pool struct {
	pool           pond.Pool
	serviceTimeout time.Duration
}

// NewPool は size 個のワーカーを持つ Pool を生成する。
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		pool:           pond.NewPool(size),
		serviceTimeout: DefaultServiceTimeout,
	}
}

// WithServiceTimeout は RunAsService の期限を変更する。
func (p *Pool) WithServiceTimeout(d time.Duration) *Pool {
	p.serviceTimeout = d
	return p
}

// Stop は実行中のタスクの完了を待ってプールを停止する。
func (p *Pool) Stop() {
	p.pool.StopAndWait()
}

// Future は非同期タスクの結果。
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Submit は fn をプールで実行し、その結果を待つ Future を返す。
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.pool.Submit(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "worker task panicked", "operation", "worker_task", "panic", r)
				f.err = fmt.Errorf("%w: worker task panicked: %v", domain.ErrGeneral, r)
			}
		}()
		f.value, f.err = fn(ctx)
	})
	return f
}

// Wait は最大 timeout だけ結果を待つ。期限切れの場合は domain.ErrGeneral を返す。
func (f *Future[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		return zero, fmt.Errorf("%w: timed out after %s waiting for worker", domain.ErrGeneral, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Done は完了時に閉じられるチャネルを返す。
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// RunAsService は呼び出し元のコンテキストから切り離したワーカーで fn を実行する。
// 呼び出し元のキャンセルは伝播せず、serviceTimeout を期限とする。
func (p *Pool) RunAsService(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	svcCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.serviceTimeout)
	defer cancel()

	f := Submit(svcCtx, p, fn)
	out, err := f.Wait(svcCtx, p.serviceTimeout)
	if err != nil {
		slog.ErrorContext(ctx, "failed to run as service",
			"operation", "run_as_service",
			"timeout", p.serviceTimeout.String(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: service operation failed: %v", domain.ErrGeneral, err)
	}
	return out, nil
}
