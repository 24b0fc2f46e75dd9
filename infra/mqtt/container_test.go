package mqtt

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		t.Logf("mosquitto not ready at %s: %v", broker, err)
		t.Skip("Mosquitto not ready after retries")
	}
	return cont, broker
}

func TestSourceAndPublisherWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	cli, err := Connect(Config{Broker: broker, ClientID: "tcm-test", TopicPrefix: "garage"}, "mqtt_test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cli.Disconnect()

	src, err := NewSource(SourceConfig{GridTopic: "site/grid", SolarTopic: "site/solar"})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := src.Attach(cli); err != nil {
		t.Fatalf("attach: %v", err)
	}

	meter := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("meter"))
	if token := meter.Connect(); token.Wait() && token.Error() != nil {
		t.Fatalf("meter connect: %v", token.Error())
	}
	defer meter.Disconnect(100)

	statuses := make(chan []byte, 1)
	if token := meter.Subscribe("garage/status", 0, func(_ paho.Client, m paho.Message) {
		select {
		case statuses <- m.Payload():
		default:
		}
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		meter.Publish("site/grid", 0, false, "-1200").Wait()
		meter.Publish("site/solar", 0, false, "3000").Wait()
		tel, _ := src.Telemetry(ctx)
		if !tel.IsZero() {
			if math.Abs(tel.GridKW+1.2) > 1e-9 || math.Abs(tel.SolarKW-3) > 1e-9 {
				t.Fatalf("unexpected telemetry %+v", tel)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no telemetry received")
		}
		time.Sleep(100 * time.Millisecond)
	}

	pub := NewPublisher(cli, cli.cfg, logger.NopLogger{})
	if err := pub.Handle(events.StatusEvent{SessionID: "s1", GridKW: -1.2, Time: time.Now()}); err != nil {
		t.Fatalf("publish status: %v", err)
	}
	select {
	case payload := <-statuses:
		if len(payload) == 0 {
			t.Fatalf("empty status payload")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("status not received")
	}
}
