package ingest

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"artisanbridge/internal/telemetry"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (state State) String() string {
	switch state {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Updater receives one batch per decoded payload.
type Updater interface {
	Update(batch map[string]float64)
}

type Config struct {
	Topic          string
	QoS            byte
	Channels       telemetry.ChannelSet
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffJitter  float64
}

func DefaultConfig() Config {
	return Config{
		Topic:          "artisan",
		Channels:       telemetry.MustChannelSet(telemetry.DefaultChannels...),
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffJitter:  0.2,
	}
}

type Option func(*Listener)

func WithLogger(logger *zap.Logger) Option {
	return func(listener *Listener) {
		if logger != nil {
			listener.logger = logger
		}
	}
}

// WithStateHook registers a callback invoked on every state transition. cause
// is the error that ended the previous connection attempt, if any.
func WithStateHook(hook func(from State, to State, cause error)) Option {
	return func(listener *Listener) {
		listener.hook = hook
	}
}

// Listener keeps a subscription to the telemetry topic alive and feeds every
// decoded payload into the store.
type Listener struct {
	dialer Dialer
	store  Updater
	config Config
	logger *zap.Logger
	hook   func(State, State, error)
	state  atomic.Int32
}

func NewListener(dialer Dialer, store Updater, config Config, options ...Option) *Listener {
	cfg := config
	defaults := DefaultConfig()

	if cfg.Topic == "" {
		cfg.Topic = defaults.Topic
	}
	if len(cfg.Channels.Names()) == 0 {
		cfg.Channels = defaults.Channels
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter > 1 {
		cfg.BackoffJitter = defaults.BackoffJitter
	}

	listener := &Listener{
		dialer: dialer,
		store:  store,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(listener)
	}
	return listener
}

func (listener *Listener) State() State {
	return State(listener.state.Load())
}

func (listener *Listener) Connected() bool {
	return listener.State() == StateConnected
}

func (listener *Listener) Status() string {
	return listener.State().String()
}

// Run connects, subscribes and waits for connection loss, retrying with
// exponential backoff until ctx is cancelled. The store keeps its values while
// the broker is unreachable.
func (listener *Listener) Run(ctx context.Context) error {
	delay := listener.config.InitialBackoff

	for {
		listener.setState(StateConnecting, nil)
		connected, err := listener.session(ctx)
		if ctx.Err() != nil {
			listener.setState(StateDisconnected, nil)
			return nil
		}
		if connected {
			delay = listener.config.InitialBackoff
		}

		listener.setState(StateDisconnected, err)
		wait := listener.jitter(delay)
		listener.logger.Warn("broker connection unavailable, retrying",
			zap.String("topic", listener.config.Topic),
			zap.Duration("retry_in", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		delay = min(delay*2, listener.config.MaxBackoff)
	}
}

func (listener *Listener) session(ctx context.Context) (bool, error) {
	conn, err := listener.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := conn.Subscribe(listener.config.Topic, listener.config.QoS, listener.HandlePayload); err != nil {
		return false, err
	}

	listener.setState(StateConnected, nil)
	listener.logger.Info("subscribed to telemetry topic", zap.String("topic", listener.config.Topic))

	select {
	case <-ctx.Done():
		return true, nil
	case err := <-conn.Lost():
		return true, err
	}
}

// HandlePayload decodes one broker message and applies its channels as a
// single batch. Malformed payloads are logged and dropped.
func (listener *Listener) HandlePayload(payload []byte) {
	defer func() {
		if recovered := recover(); recovered != nil {
			listener.logger.Error("telemetry payload handler panicked",
				zap.Any("panic", recovered),
				zap.ByteString("payload", payload))
		}
	}()

	batch, err := telemetry.DecodeBatch(payload, listener.config.Channels)
	if err != nil {
		listener.logger.Warn("discarding malformed telemetry payload",
			zap.Error(err),
			zap.ByteString("payload", truncate(payload, 256)))
		return
	}
	for _, invalid := range batch.Invalid {
		listener.logger.Warn("ignoring invalid channel value", zap.String("channel", invalid.Channel), zap.Error(invalid.Err))
	}
	if len(batch.Values) == 0 {
		listener.logger.Debug("telemetry payload carried no recognized channels")
		return
	}

	listener.store.Update(batch.Values)
	listener.logger.Debug("telemetry updated", zap.Any("values", batch.Values))
}

func (listener *Listener) setState(state State, cause error) {
	previous := State(listener.state.Swap(int32(state)))
	if previous == state {
		return
	}
	if listener.hook != nil {
		listener.hook(previous, state, cause)
	}
}

func (listener *Listener) jitter(delay time.Duration) time.Duration {
	if listener.config.BackoffJitter == 0 {
		return delay
	}
	spread := float64(delay) * listener.config.BackoffJitter
	return delay + time.Duration((rand.Float64()*2-1)*spread)
}

func truncate(payload []byte, limit int) []byte {
	if len(payload) <= limit {
		return payload
	}
	return payload[:limit]
}
