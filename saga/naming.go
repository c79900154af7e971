// Package saga 实现编排式 Saga 框架
//
// 编排器按步骤顺序驱动分布式事务，参与方服务通过消息队列
// 接收命令并回复结果；任一步骤失败时按相反顺序执行补偿。
package saga

// 回复任务名后缀
const (
	successSuffix = ".response.success"
	failureSuffix = ".response.failure"
)

// SuccessTaskName 返回基础任务对应的成功回复任务名
//
// 参数:
//   - baseTask: 基础任务名，如 "consumer_service.verify_consumer_details"
//
// 返回:
//   - string: 成功回复任务名
func SuccessTaskName(baseTask string) string {
	return baseTask + successSuffix
}

// FailureTaskName 返回基础任务对应的失败回复任务名
func FailureTaskName(baseTask string) string {
	return baseTask + failureSuffix
}

// CommandsQueue 返回参与方服务的命令队列名
//
// 约定为 "<service>.commands"，服务的所有步骤处理器都消费该队列。
func CommandsQueue(service string) string {
	return service + ".commands"
}

// ResponseQueue 返回 Saga 的回复队列名
//
// 约定为 "<saga>.response"，该 Saga 的所有回复都投递到此队列。
func ResponseQueue(sagaName string) string {
	return sagaName + ".response"
}
