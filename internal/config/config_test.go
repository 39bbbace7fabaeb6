package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "America/New_York", cfg.Engine.Timezone)
	assert.True(t, cfg.Engine.SlippageBps.IsZero())
	assert.Equal(t, 15*time.Second, cfg.Scheduler.ExecutionInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("SLIPPAGE_BPS", "10")
	t.Setenv("EXECUTION_INTERVAL", "5s")
	t.Setenv("SNAPSHOT_INTERVAL", "300")

	cfg := Load()

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "10", cfg.Engine.SlippageBps.String())
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ExecutionInterval)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.SnapshotInterval, "bare integers are seconds")
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: "5432", User: "svc", Password: "secret",
		DBName: "papertrading", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://svc:secret@db:5432/papertrading?sslmode=disable", d.ConnectionString())
}
