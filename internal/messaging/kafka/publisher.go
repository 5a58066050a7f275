package kafka

import (
	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// EventPublisher адаптирует Producer под порт domain.EventPublisher.
// Topic выбирается по типу агрегата, ключ партиционирования — AggregateID,
// поэтому события одного заказа всегда попадают в одну партицию.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher создаёт адаптер публикации событий журнала.
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish доставляет событие журнала в брокер. Повтор доставки допустим:
// consumers дедуплицируют по (aggregate_id, version).
func (p *EventPublisher) Publish(event domain.Event) error {
	envelope := EventEnvelope{
		EventType:     event.EventType,
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID,
		Version:       event.Version,
		Payload:       event.Payload,
		OccurredAt:    event.CreatedAt,
	}
	return p.producer.PublishEvent(TopicForAggregate(event.AggregateType), event.AggregateID, envelope)
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

// DLQPublisher публикует события в Dead Letter Queue. Используется relay,
// когда событие не удалось доставить в основной topic.
type DLQPublisher struct {
	producer *Producer
}

// NewDLQPublisher создаёт publisher для DLQ.
func NewDLQPublisher(producer *Producer) *DLQPublisher {
	return &DLQPublisher{producer: producer}
}

// Publish доставляет событие в DLQ topic без изменения payload.
func (p *DLQPublisher) Publish(event domain.Event) error {
	envelope := EventEnvelope{
		EventType:     event.EventType,
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID,
		Version:       event.Version,
		Payload:       event.Payload,
		OccurredAt:    event.CreatedAt,
	}
	return p.producer.PublishEvent(TopicDeadLetterQueue, event.AggregateID, envelope)
}

var _ domain.EventPublisher = (*DLQPublisher)(nil)
