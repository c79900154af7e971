// Package snowflake 提供分布式ID生成器（雪花算法）
//
// 用于为 Saga 实例分配全局唯一的数字 ID：发起方在 execute 之前
// 生成 saga_id，之后该 ID 作为所有消息的关联键。
package snowflake

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	// 各部分位数
	nodeIDBits   = 10
	sequenceBits = 12

	// 最大值
	maxNodeID   = -1 ^ (-1 << nodeIDBits)   // 1023
	maxSequence = -1 ^ (-1 << sequenceBits) // 4095

	// 位移
	nodeIDShift        = sequenceBits
	timestampLeftShift = sequenceBits + nodeIDBits

	// 默认配置
	DefaultNodeID int64 = 1
)

// Generator Snowflake ID生成器
type Generator struct {
	mux           sync.Mutex
	nodeID        int64
	sequence      int64
	lastTimestamp int64
}

// NewGenerator 创建ID生成器
func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, errors.New("node ID out of range")
	}

	return &Generator{
		nodeID:        nodeID,
		lastTimestamp: -1,
	}, nil
}

// NextID 生成下一个ID
func (g *Generator) NextID() (int64, error) {
	g.mux.Lock()
	defer g.mux.Unlock()

	now := time.Now().UnixMilli()

	if now < g.lastTimestamp {
		return 0, errors.New("clock moved backwards, refusing to generate id")
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= g.lastTimestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now

	id := ((now - epoch) << timestampLeftShift) |
		(g.nodeID << nodeIDShift) |
		g.sequence

	return id, nil
}

// Generate 生成ID（忽略错误）
func (g *Generator) Generate() int64 {
	id, _ := g.NextID()
	return id
}

// Parse 解析ID
func Parse(id int64) map[string]int64 {
	return map[string]int64{
		"timestamp": (id >> timestampLeftShift) + epoch,
		"nodeID":    (id >> nodeIDShift) & maxNodeID,
		"sequence":  id & maxSequence,
	}
}

// 全局默认生成器（通过原子指针保证并发安全）
var defaultGenerator atomic.Pointer[Generator]

func init() {
	gen, _ := NewGenerator(DefaultNodeID)
	defaultGenerator.Store(gen)
}

// NextID 使用默认生成器生成ID
func NextID() (int64, error) {
	gen := defaultGenerator.Load()
	if gen == nil {
		return 0, errors.New("default generator is not initialized")
	}
	return gen.NextID()
}

// Generate 使用默认生成器生成ID
func Generate() int64 {
	gen := defaultGenerator.Load()
	if gen == nil {
		return 0
	}
	return gen.Generate()
}

// SetDefaultGenerator 设置默认生成器的节点ID
func SetDefaultGenerator(nodeID int64) error {
	gen, err := NewGenerator(nodeID)
	if err != nil {
		return err
	}
	defaultGenerator.Store(gen)
	return nil
}
