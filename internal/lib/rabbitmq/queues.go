package rabbitmq

// prefetch ограничивает число неподтверждённых сообщений на канал.
const prefetch = 10

// QueueConfig описывает очередь и ключ, которым она привязана к Exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Очередь уведомлений об истёкшем доступе.
const (
	ExpiredQueue      = "notification.expired"
	ExpiredRoutingKey = "expired"
)

// NotificationQueues возвращает очереди, которые объявляют и планировщик, и отправитель.
func NotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: ExpiredQueue, RoutingKey: ExpiredRoutingKey},
	}
}
