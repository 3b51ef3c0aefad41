package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Conn is one live broker connection. Lost yields at most one value when the
// broker connection drops.
type Conn interface {
	Subscribe(topic string, qos byte, handle func(payload []byte)) error
	Lost() <-chan error
	Close()
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// PahoDialer opens a fresh paho client per Dial. Reconnection is driven by the
// Listener, so paho's own auto-reconnect stays off.
type PahoDialer struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

func NewPahoDialer(host string, port int, username string, password string) PahoDialer {
	return PahoDialer{
		Broker:         fmt.Sprintf("tcp://%s:%d", host, port),
		ClientID:       "artisanbridge-" + uuid.NewString()[:8],
		Username:       username,
		Password:       password,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      60 * time.Second,
	}
}

func (dialer PahoDialer) Dial(ctx context.Context) (Conn, error) {
	lost := make(chan error, 1)

	options := mqtt.NewClientOptions().
		AddBroker(dialer.Broker).
		SetClientID(dialer.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectTimeout(dialer.ConnectTimeout).
		SetKeepAlive(dialer.KeepAlive)
	if dialer.Username != "" {
		options.SetUsername(dialer.Username)
		options.SetPassword(dialer.Password)
	}
	options.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})

	client := mqtt.NewClient(options)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialer.Broker, err)
	}

	return &pahoConn{client: client, lost: lost, timeout: dialer.ConnectTimeout}, nil
}

type pahoConn struct {
	client  mqtt.Client
	lost    chan error
	timeout time.Duration
}

func (conn *pahoConn) Subscribe(topic string, qos byte, handle func(payload []byte)) error {
	token := conn.client.Subscribe(topic, qos, func(_ mqtt.Client, message mqtt.Message) {
		handle(message.Payload())
	})
	if !token.WaitTimeout(conn.timeout) {
		return fmt.Errorf("subscribe %s: timed out after %s", topic, conn.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (conn *pahoConn) Lost() <-chan error {
	return conn.lost
}

func (conn *pahoConn) Close() {
	conn.client.Disconnect(250)
}

// RoutePahoLogs sends paho's package-level error and warning output through logger.
func RoutePahoLogs(logger *zap.Logger) {
	named := logger.Named("paho")
	mqtt.ERROR = zapStdLog(named, zap.ErrorLevel)
	mqtt.CRITICAL = zapStdLog(named, zap.ErrorLevel)
	mqtt.WARN = zapStdLog(named, zap.WarnLevel)
}

func zapStdLog(logger *zap.Logger, level zapcore.Level) *log.Logger {
	stdLogger, err := zap.NewStdLogAt(logger, level)
	if err != nil {
		return zap.NewStdLog(logger)
	}
	return stdLogger
}
