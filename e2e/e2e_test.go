package e2e

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/flexmarket/app"
	"github.com/kilianp07/flexmarket/config"
	"github.com/kilianp07/flexmarket/core/events"
	"github.com/kilianp07/flexmarket/core/factory"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/solver/solvertest"
	"github.com/kilianp07/flexmarket/infra/metrics"
	"github.com/kilianp07/flexmarket/infra/mqtt"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

// junitReport is a minimal representation of a JUnit XML report so CI
// systems can display the results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string  `xml:"name,attr"`
	Failure *string `xml:"failure,omitempty"`
	Time    float64 `xml:"time,attr"`
}

func writeJUnit(path string, rep junitReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(rep)
}

// startInflux starts an InfluxDB 2.7 container initialized with the test
// organization, bucket and token.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a broker accepting anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func writeDay(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		instance.PricesFile:        "2,1e-5,100,1\n1,10,20,5\n2,12,24,6\n",
		instance.NetworkFile:       "2,1,0,0,10,20\n1,0,1,0.1,0.1,5\n0,0,0.9,1.1\n1,0,0.95,1.05\n",
		instance.QualifiedFlexFile: "# none\n",
		instance.TSOFile:           "0,3,4\n1,1,-1,2\n2,0.5,-0.5,-1\n",
		"retailers/ret.csv":        "0,2,50\n0\n0,1,-5,0\n0,2,-6,-1\n0,0,-7,0\n1,0\n2,0\n",
		"producers/prod.csv":       "0\n1\n1,1,0,10,5,1\n1,2,2,8,6,2\n1,0\n2,0\n1,0,12\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// subscribe collects the progress messages published under prefix.
func subscribe(t *testing.T, broker, prefix string) (func() []mqtt.Message, func()) {
	t.Helper()
	var (
		mu   sync.Mutex
		msgs []mqtt.Message
	)
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-observer")
	c := paho.NewClient(opts)
	tok := c.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	sub := c.Subscribe(prefix+"/runs/#", 1, func(_ paho.Client, m paho.Message) {
		var msg mqtt.Message
		if err := json.Unmarshal(m.Payload(), &msg); err == nil {
			mu.Lock()
			msgs = append(msgs, msg)
			mu.Unlock()
		}
	})
	require.True(t, sub.WaitTimeout(10*time.Second))
	require.NoError(t, sub.Error())
	get := func() []mqtt.Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]mqtt.Message(nil), msgs...)
	}
	return get, func() { c.Disconnect(100) }
}

// Test_E2E_RunProgress runs one day against a real broker and InfluxDB and
// checks that progress messages and points arrive.
func Test_E2E_RunProgress(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	start := time.Now()

	influxCont, influxURL := startInflux(ctx, t)
	defer influxCont.Terminate(ctx) //nolint:errcheck
	mqttCont, broker := startMosquitto(ctx, t)
	defer mqttCont.Terminate(ctx) //nolint:errcheck

	received, disconnect := subscribe(t, broker, "e2e")
	defer disconnect()

	cfg := config.Default()
	cfg.Simulation.ModelDir = ""
	cfg.Simulation.WorkspaceDir = t.TempDir()
	cfg.MQTT = mqtt.Config{Broker: broker, TopicPrefix: "e2e", QoS: 1}
	cfg.MQTT.SetDefaults()
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: metrics.TypeInflux, Conf: map[string]any{
		"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket,
	}}}

	a, err := app.New(cfg, app.WithSolver(solvertest.New()))
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "day-e2e")
	writeDay(t, dir)
	res, err := a.Run(ctx, dir, filepath.Join(t.TempDir(), "day-e2e.xml"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.True(t, res.Converged)

	require.Eventually(t, func() bool {
		for _, m := range received() {
			if m.Kind == events.KindRunFinished {
				return true
			}
		}
		return false
	}, 10*time.Second, 100*time.Millisecond)
	kinds := map[events.Kind]int{}
	for _, m := range received() {
		kinds[m.Kind]++
		assert.NotEmpty(t, m.MessageID)
	}
	assert.Equal(t, 1, kinds[events.KindRunStarted])
	assert.Equal(t, res.Iterations+1, kinds[events.KindIterationFinished])

	cli := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer cli.Close()
	n, err := cli.CountPoints(ctx, "run", res.RunID)
	require.NoError(t, err)
	assert.Positive(t, n)

	rep := junitReport{Name: "e2e", Tests: 1, Cases: []junitTestCase{{Name: t.Name(), Time: time.Since(start).Seconds()}}}
	if err := writeJUnit(filepath.Join(t.TempDir(), "e2e.xml"), rep); err != nil {
		t.Logf("write junit: %v", err)
	}
}
