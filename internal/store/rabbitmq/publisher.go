package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TurnMessage is the queue payload; the job row holds everything else.
type TurnMessage struct {
	JobID string `json:"job_id"`
}

func EncodeTurn(jobID string) ([]byte, error) {
	if jobID == "" {
		return nil, fmt.Errorf("empty job id")
	}
	return json.Marshal(TurnMessage{JobID: jobID})
}

func DecodeTurn(body []byte) (TurnMessage, error) {
	var m TurnMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, err
	}
	if m.JobID == "" {
		return m, fmt.Errorf("missing job_id")
	}
	return m, nil
}

type Publisher struct {
	conn  *amqp.Connection
	mu    sync.Mutex // amqp channels are not safe for concurrent publishing
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	body, err := EncodeTurn(jobID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    jobID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
