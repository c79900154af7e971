package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTaskNaming 测试任务名与队列名约定
func TestTaskNaming(t *testing.T) {
	base := "consumer_service.verify_consumer_details"

	assert.Equal(t, base+".response.success", SuccessTaskName(base))
	assert.Equal(t, base+".response.failure", FailureTaskName(base))
	assert.Equal(t, "consumer_service.commands", CommandsQueue("consumer_service"))
	assert.Equal(t, "create_order_saga.response", ResponseQueue("create_order_saga"))
}
