//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/sequence"
)

func TestInventoryIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgC, dbURL := startPostgres(ctx, t)
	defer terminateContainer(t, pgC)

	rabbitC, rabbitURL := startRabbitMQ(ctx, t)
	defer terminateContainer(t, rabbitC)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	require.NoError(t, db.RunMigrations(dbURL, logger))
	// second run is a no-op
	require.NoError(t, db.RunMigrations(dbURL, logger))

	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	conn, err := events.Dial(rabbitURL, 15*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	pub, err := events.NewPublisher(conn, events.PublisherOptions{Sequencer: sequence.NewCounter(pool)})
	require.NoError(t, err)
	defer pub.Close()

	deliveries := bindEventsQueue(t, conn)

	svc := inventory.NewService(inventory.NewPostgresRepository(pool), pub, logger)
	baseURL, stop := startServer(t, httpapi.NewRouter(httpapi.NewHandler(svc, logger), logger))
	defer stop()

	client := &http.Client{Timeout: 5 * time.Second}

	require.Equal(t, "[]", getInventory(ctx, t, client, baseURL))

	require.Equal(t, http.StatusCreated, post(ctx, t, client, baseURL+"/products/add/", `{"handle":"sku1","weight":1.5,"price":9.99}`))
	require.Equal(t, http.StatusConflict, post(ctx, t, client, baseURL+"/products/add/", `{"handle":"sku1","weight":1,"price":1}`))
	require.Equal(t, http.StatusBadRequest, post(ctx, t, client, baseURL+"/products/add/", `{"weight":1.0,"price":2.0}`))

	require.Equal(t, http.StatusCreated, post(ctx, t, client, baseURL+"/storage/sku1/add/", `{"location":"shop","qty":2}`))
	require.Equal(t, http.StatusCreated, post(ctx, t, client, baseURL+"/storage/sku1/add/", `{"location":"warehouse","qty":42}`))
	require.Equal(t, http.StatusNotFound, post(ctx, t, client, baseURL+"/storage/doesnotexist/add/", `{"location":"shop","qty":2}`))

	require.JSONEq(t,
		`[{"handle":"sku1","weight":1.5,"price":9.99,"inventory":[["shop",2],["warehouse",42]]}]`,
		getInventory(ctx, t, client, baseURL))

	created := waitForEvent(ctx, t, deliveries, events.ProductCreatedRoutingKey)
	var pc events.ProductCreatedEvent
	require.NoError(t, json.Unmarshal(created.Body, &pc))
	require.NoError(t, pc.Validate(events.EventTypeProductCreated, 1))
	require.Equal(t, "sku1", pc.Payload.Handle)
	require.EqualValues(t, 1, pc.Sequence)

	added := waitForEvent(ctx, t, deliveries, events.StockAddedRoutingKey)
	var sa events.StockAddedEvent
	require.NoError(t, json.Unmarshal(added.Body, &sa))
	require.Equal(t, "shop", sa.Payload.Location)
	require.EqualValues(t, 2, sa.Sequence)

	var last int64
	require.NoError(t, pool.QueryRow(ctx, "SELECT last_sequence FROM event_sequence WHERE partition_key = $1", "sku1").Scan(&last))
	require.EqualValues(t, 3, last)

	// deleting a product detaches its storage rows
	_, err = pool.Exec(ctx, "DELETE FROM product WHERE handle = $1", "sku1")
	require.NoError(t, err)
	var orphans int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM storage WHERE product_id IS NULL").Scan(&orphans))
	require.Equal(t, 2, orphans)
	require.Equal(t, "[]", getInventory(ctx, t, client, baseURL))
}

func startServer(t *testing.T, handler http.Handler) (string, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return fmt.Sprintf("http://%s", ln.Addr().String()), func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		select {
		case err := <-errCh:
			t.Logf("server error: %v", err)
		default:
		}
	}
}

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "inventory"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("postgres://postgres:postgres@%s:%s/inventory?sslmode=disable", host, mappedPort.Port())
}

func startRabbitMQ(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mappedPort.Port())
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}

// bindEventsQueue declares a private queue bound to every inventory event.
func bindEventsQueue(t *testing.T, conn *amqp.Connection) <-chan amqp.Delivery {
	t.Helper()

	ch, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	require.NoError(t, ch.ExchangeDeclare(events.EventsExchange, "topic", true, false, false, false, nil))
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "#", events.EventsExchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)
	return deliveries
}

func waitForEvent(ctx context.Context, t *testing.T, deliveries <-chan amqp.Delivery, routingKey string) amqp.Delivery {
	t.Helper()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	for {
		select {
		case <-waitCtx.Done():
			t.Fatalf("timed out waiting for %s: %v", routingKey, waitCtx.Err())
		case d, ok := <-deliveries:
			require.True(t, ok, "delivery channel closed")
			if d.RoutingKey == routingKey {
				return d
			}
		}
	}
}

func post(ctx context.Context, t *testing.T, client *http.Client, url, body string) int {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}

func getInventory(ctx context.Context, t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/storage/", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(body))
}
