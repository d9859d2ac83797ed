package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PUBLIC_BASE_URL", "https://tickets.example.com/")
	t.Setenv("WORKER_TASK_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "development", cfg.Environment)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "payment-webhooks", cfg.Kafka.RelayTopic)
	assert.Equal(t, 8, cfg.Worker.Count)
	assert.Zero(t, cfg.Worker.TaskTimeout)
	assert.Equal(t, "https://tickets.example.com", cfg.App.PublicBaseURL)
}

func TestLoad_BrokerList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")

	cfg := Load()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestAllowUnverifiedWebhooks_NeverInProduction(t *testing.T) {
	cases := []struct {
		env  string
		flag string
		want bool
	}{
		{"production", "true", false},
		{"PRODUCTION", "true", false},
		{"production", "false", false},
		{"development", "true", true},
		{"development", "false", false},
		{"staging", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.env+"/"+tc.flag, func(t *testing.T) {
			t.Setenv("APP_ENV", tc.env)
			t.Setenv("STRIPE_ALLOW_UNVERIFIED_WEBHOOKS", tc.flag)

			assert.Equal(t, tc.want, Load().AllowUnverifiedWebhooks())
		})
	}
}
