// Package memory 实现 Worker 池管理
package memory

import (
	"context"
	"fmt"
)

// Start 启动代理
//
// 启动 Worker 池开始处理消息队列
func (b *MemoryBroker) Start(ctx context.Context) error {
	b.mutex.Lock()
	if b.running {
		b.mutex.Unlock()
		return fmt.Errorf("memory broker is already running")
	}

	b.running = true

	for i := 0; i < b.workerCount; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}

	b.mutex.Unlock()
	return nil
}

// Close 关闭代理
//
// 停止所有 Worker 并等待缓冲中的消息分发完成
func (b *MemoryBroker) Close() error {
	b.mutex.Lock()
	if !b.running {
		b.mutex.Unlock()
		return fmt.Errorf("memory broker is not running")
	}

	b.running = false
	queue := b.queue
	b.mutex.Unlock()

	// 关闭队列，Worker 读完缓冲中的消息后自然退出
	close(queue)
	b.wg.Wait()

	return nil
}

// worker 工作协程
func (b *MemoryBroker) worker(ctx context.Context) {
	defer b.wg.Done()

	for e := range b.queue {
		b.dispatch(ctx, e)
	}
}
