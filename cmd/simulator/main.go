package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"artisanbridge/internal/config"
	"artisanbridge/internal/logging"
)

// roastModel drifts ET toward a target and lets BT lag behind it, which is
// close enough to a drum roaster's curves for exercising the bridge.
type roastModel struct {
	et       float64
	bt       float64
	targetET float64
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	host := flags.StringP("host", "H", config.DefaultMQTTHost, "MQTT broker hostname")
	port := flags.Int("port", config.DefaultMQTTPort, "MQTT broker port")
	topic := flags.String("topic", config.DefaultMQTTTopic, "MQTT topic to publish on")
	user := flags.StringP("user", "u", config.DefaultMQTTUser, "MQTT username")
	password := flags.StringP("password", "p", config.DefaultMQTTPassword, "MQTT password")
	interval := flags.Duration("interval", 2*time.Second, "base delay between published readings")
	jitter := flags.Duration("jitter", 500*time.Millisecond, "max random delay added to each interval")
	count := flags.Int("count", 0, "number of readings to publish (0 = infinite)")
	seed := flags.Int64("seed", 0, "random seed (0 = use current time)")
	scenario := flags.Bool("scenario", false, "publish the three reference payloads and exit")
	debug := flags.Bool("debug", false, "log every payload")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	switch {
	case *interval <= 0:
		return errors.New("interval must be > 0")
	case *jitter < 0:
		return errors.New("jitter must be >= 0")
	case *count < 0:
		return errors.New("count must be >= 0")
	}

	logger, err := logging.New(logging.Options{Debug: *debug})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := fmt.Sprintf("tcp://%s:%d", *host, *port)
	options := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("artisan-simulator-" + uuid.NewString()[:8]).
		SetUsername(*user).
		SetPassword(*password).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(options)
	if token := client.Connect(); !token.WaitTimeout(15*time.Second) || token.Error() != nil {
		return fmt.Errorf("connect to %s: %w", broker, tokenError(token))
	}
	defer client.Disconnect(250)
	logger.Info("connected to broker", zap.String("broker", broker), zap.String("topic", *topic))

	publish := func(payload map[string]any) error {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		token := client.Publish(*topic, 0, false, body)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			return fmt.Errorf("publish: %w", tokenError(token))
		}
		logger.Debug("published", zap.ByteString("payload", body))
		return nil
	}

	if *scenario {
		return runScenario(ctx, publish, *interval, logger)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	model := roastModel{et: 180, bt: 150, targetET: 240}
	logger.Info("simulator started", zap.Int64("seed", *seed), zap.Duration("interval", *interval))

	emitted := 0
	for {
		if *count > 0 && emitted >= *count {
			logger.Info("simulation complete", zap.Int("published", emitted))
			return nil
		}

		et, bt := model.next(rng)
		payload := map[string]any{"ET": et, "BT": bt, "timestamp": float64(time.Now().UnixMilli()) / 1000}
		if err := publish(payload); err != nil {
			logger.Warn("send failed", zap.Error(err))
		} else {
			emitted++
			logger.Info("sent", zap.Int("n", emitted), zap.Float64("ET", et), zap.Float64("BT", bt))
		}

		delay := *interval
		if *jitter > 0 {
			delay += time.Duration(rng.Int63n(int64(*jitter) + 1))
		}

		select {
		case <-ctx.Done():
			logger.Info("simulation stopped")
			return nil
		case <-time.After(delay):
		}
	}
}

// runScenario publishes the three reference payloads: both channels, both
// channels in swapped order, then BT alone.
func runScenario(ctx context.Context, publish func(map[string]any) error, pause time.Duration, logger *zap.Logger) error {
	now := func() float64 { return float64(time.Now().UnixMilli()) / 1000 }
	steps := []func() map[string]any{
		func() map[string]any { return map[string]any{"ET": 300, "BT": 240, "timestamp": now()} },
		func() map[string]any { return map[string]any{"BT": 241, "ET": 301, "timestamp": now()} },
		func() map[string]any { return map[string]any{"BT": 201.3, "timestamp": now()} },
	}

	for index, step := range steps {
		if index > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pause):
			}
		}
		payload := step()
		if err := publish(payload); err != nil {
			return err
		}
		logger.Info("published reference payload", zap.Int("step", index+1), zap.Any("payload", payload))
	}
	return nil
}

func (model *roastModel) next(rng *rand.Rand) (float64, float64) {
	model.targetET = clamp(model.targetET+rng.NormFloat64()*0.5, 200, 280)
	model.et = clamp(model.et+(model.targetET-model.et)*0.08+rng.NormFloat64()*0.6, 20, 300)
	model.bt = clamp(model.bt+(model.et-model.bt)*0.03+rng.NormFloat64()*0.2, 20, 260)
	return round1(model.et), round1(model.bt)
}

func tokenError(token mqtt.Token) error {
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("timed out")
}

func clamp(value float64, min float64, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
