package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки соединения.
var (
	// ErrNoChannel — соединение не установлено или переподключается.
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrNotConfirmed — брокер не подтвердил публикацию (basic.nack).
	ErrNotConfirmed = errors.New("publish not confirmed by broker")

	// ErrClosed — соединение закрыто через Close.
	ErrClosed = errors.New("connection closed")
)

const (
	defaultHeartbeat         = 10 * time.Second
	defaultMaxReconnectDelay = 30 * time.Second
)

// Option настраивает Connection.
type Option func(*Connection)

// WithName задаёт имя соединения, видимое в RabbitMQ management.
func WithName(name string) Option {
	return func(c *Connection) { c.name = name }
}

// WithHeartbeat задаёт интервал AMQP heartbeat.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Connection) { c.heartbeat = d }
}

// WithMaxReconnectDelay ограничивает задержку между попытками переподключения.
func WithMaxReconnectDelay(d time.Duration) Option {
	return func(c *Connection) { c.maxDelay = d }
}

// Connection — AMQP соединение с автоматическим reconnect.
//
// Держит два канала: служебный (топология) и канал публикации
// в режиме publisher confirms. Consumers открывают собственные
// каналы через OpenChannel, чтобы prefetch и ошибки канала
// не влияли друг на друга.
type Connection struct {
	url       string
	name      string
	heartbeat time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	pubCh   *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// reconnected закрывается после успешного переподключения
	// и заменяется новым: так сигнал получают все consumers.
	reconnected chan struct{}
}

// NewConnection создаёт новое соединение с RabbitMQ.
func NewConnection(url string, logger *slog.Logger, opts ...Option) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         url,
		name:        "batchflow",
		heartbeat:   defaultHeartbeat,
		maxDelay:    defaultMaxReconnectDelay,
		logger:      logger,
		closedCh:    make(chan struct{}),
		reconnected: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и открывает оба канала.
func (c *Connection) connect() error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  c.heartbeat,
		Properties: amqp.Table{"connection_name": c.name},
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open publish channel: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.pubCh = pubCh
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ", "connection_name", c.name)
	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыли во время ожидания.
func (c *Connection) reconnect() bool {
	delay := time.Second

	for {
		c.logger.Info("attempting to reconnect", "delay", delay)

		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			delay = min(delay*2, c.maxDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")

		c.mu.Lock()
		close(c.reconnected)
		c.reconnected = make(chan struct{})
		c.mu.Unlock()

		return true
	}
}

// Channel возвращает текущий служебный канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// OpenChannel открывает новый канал на текущем соединении.
func (c *Connection) OpenChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if conn == nil || conn.IsClosed() {
		return nil, ErrNoChannel
	}
	return conn.Channel()
}

// ReconnectNotify возвращает канал, который закроется после следующего
// успешного переподключения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	// Закрытие соединения закрывает и все его каналы
	var err error
	if c.conn != nil && !c.conn.IsClosed() {
		err = c.conn.Close()
	}
	if err != nil {
		return fmt.Errorf("close connection: %w", err)
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.conn == nil {
		return false
	}
	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию со служебным каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	return fn(ch)
}

// publish отправляет сообщение и ждёт подтверждения брокера.
func (c *Connection) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	c.mu.RLock()
	ch := c.pubCh
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, msg)
	if err != nil {
		return err
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}
