package orders

const TopicPaymentResult = "order.payment.result"

// Partition key = order_id, so every event of one order lands in one partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
