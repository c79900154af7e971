// Package di 提供简单的依赖注入容器。
//
// 编排器与参与方进程在单一启动函数中完成装配：构造 broker 客户端、
// 状态仓储与引擎，并显式传入各业务对象。本容器仅作为装配期的
// 登记表使用，业务代码应通过构造函数参数获得依赖，而不是在函数
// 内部直接访问全局容器。
package di

import (
	"fmt"
	"reflect"
	"sync"
)

// Container 依赖注入容器
type Container struct {
	services map[reflect.Type]any
	mutex    sync.RWMutex
}

// New 创建容器
func New() *Container {
	return &Container{
		services: make(map[reflect.Type]any),
	}
}

// Register 注册服务
// 注意：service 必须是指针类型，会自动提取元素类型作为key
func (c *Container) Register(service any) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// 获取指针指向的类型，与Resolve保持一致
	t := reflect.TypeOf(service)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.services[t] = service

	return nil
}

// RegisterAs 注册服务并指定接口类型
//
// serviceType 传接口指针，例如 (*saga.StateRepository)(nil)
func (c *Container) RegisterAs(serviceType any, service any) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	t := reflect.TypeOf(serviceType).Elem()
	c.services[t] = service

	return nil
}

// Resolve 解析服务
func (c *Container) Resolve(serviceType any) (any, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	t := reflect.TypeOf(serviceType).Elem()
	service, exists := c.services[t]
	if !exists {
		return nil, fmt.Errorf("service not found: %v", t)
	}

	return service, nil
}

// MustResolve 解析服务（panic版本）
func (c *Container) MustResolve(serviceType any) any {
	service, err := c.Resolve(serviceType)
	if err != nil {
		panic(err)
	}
	return service
}

// Has 检查服务是否存在
func (c *Container) Has(serviceType any) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	t := reflect.TypeOf(serviceType).Elem()
	_, exists := c.services[t]
	return exists
}

// Clear 清空容器（测试用）
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services = make(map[reflect.Type]any)
}
