package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "10.0.0.0/16", cfg.Network.CIDR)
	assert.Equal(t, "ai-data", cfg.Bucket.Name)
	assert.Equal(t, []string{"Accept"}, cfg.Endpoint.NotificationEvents)
	assert.Equal(t, "ai-secret", cfg.Secret.Name)
	assert.True(t, cfg.Secret.ForceDelete)
	assert.Equal(t, "ai-alarm", cfg.Alarm.Name)
	assert.Equal(t, "GreaterThanOrEqualToThreshold", cfg.Alarm.ComparisonOperator)
	assert.Equal(t, "Average", cfg.Alarm.Statistic)
	assert.InDelta(t, 80.0, cfg.Alarm.Threshold, 0.001)
	assert.Equal(t, int32(60), cfg.Alarm.Period)
	assert.Equal(t, int32(1), cfg.Alarm.EvaluationPeriods)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
name: ml
region: eu-west-1
bucket:
  name: ml-training-data
secret:
  force_delete: false
alarm:
  threshold: 95
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ml", cfg.Name)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "ml-training-data", cfg.Bucket.Name)
	assert.False(t, cfg.Secret.ForceDelete)
	assert.InDelta(t, 95.0, cfg.Alarm.Threshold, 0.001)

	// Untouched sections keep their defaults.
	assert.Equal(t, "10.0.0.0/16", cfg.Network.CIDR)
	assert.Equal(t, "ai-secret", cfg.Secret.Name)
	assert.Equal(t, "CPUUtilization", cfg.Alarm.MetricName)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "name: [unterminated"))
	assert.Error(t, err)
}

func TestServiceName(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "com.amazonaws.us-east-1.s3", cfg.ServiceName())

	cfg.Region = "ap-southeast-2"
	assert.Equal(t, "com.amazonaws.ap-southeast-2.s3", cfg.ServiceName())
}

func TestTopicARNFor(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "arn:aws:sns:us-east-1:012345678901:my-topic", cfg.TopicARNFor("012345678901"))

	cfg.Endpoint.TopicARN = "arn:aws:sns:us-east-1:999999999999:ops"
	assert.Equal(t, "arn:aws:sns:us-east-1:999999999999:ops", cfg.TopicARNFor("012345678901"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "bad stack name", mutate: func(c *Config) { c.Name = "AI Stack" }, wantErr: "name"},
		{name: "bad region", mutate: func(c *Config) { c.Region = "useast1" }, wantErr: "region"},
		{name: "china region", mutate: func(c *Config) { c.Region = "cn-north-1" }, wantErr: "outside the aws partition"},
		{name: "govcloud region", mutate: func(c *Config) { c.Region = "us-gov-west-1" }, wantErr: "outside the aws partition"},
		{name: "iso region", mutate: func(c *Config) { c.Region = "us-isob-east-1" }, wantErr: "outside the aws partition"},
		{name: "unparseable cidr", mutate: func(c *Config) { c.Network.CIDR = "10.0.0.0" }, wantErr: "network.cidr"},
		{name: "cidr too large", mutate: func(c *Config) { c.Network.CIDR = "10.0.0.0/8" }, wantErr: "/16 and /28"},
		{name: "ipv6 cidr", mutate: func(c *Config) { c.Network.CIDR = "2001:db8::/56" }, wantErr: "IPv4"},
		{name: "uppercase bucket", mutate: func(c *Config) { c.Bucket.Name = "AI-Data" }, wantErr: "bucket name"},
		{name: "bucket with double dot", mutate: func(c *Config) { c.Bucket.Name = "ai..data" }, wantErr: "bucket name"},
		{name: "bucket shaped like an ip", mutate: func(c *Config) { c.Bucket.Name = "192.168.1.10" }, wantErr: "bucket name"},
		{name: "interface endpoint", mutate: func(c *Config) { c.Endpoint.Type = "Interface" }, wantErr: "endpoint type"},
		{name: "unknown event", mutate: func(c *Config) { c.Endpoint.NotificationEvents = []string{"Accept", "Ping"} }, wantErr: "Ping"},
		{name: "no events", mutate: func(c *Config) { c.Endpoint.NotificationEvents = nil }, wantErr: "notification_events"},
		{name: "no topic", mutate: func(c *Config) { c.Endpoint.TopicName = "" }, wantErr: "topic"},
		{name: "topic arn malformed", mutate: func(c *Config) { c.Endpoint.TopicARN = "my-topic" }, wantErr: "not an ARN"},
		{name: "no secret name", mutate: func(c *Config) { c.Secret.Name = "" }, wantErr: "secret.name"},
		{name: "bad statistic", mutate: func(c *Config) { c.Alarm.Statistic = "Median" }, wantErr: "statistic"},
		{name: "bad operator", mutate: func(c *Config) { c.Alarm.ComparisonOperator = ">=" }, wantErr: "comparison_operator"},
		{name: "bad period", mutate: func(c *Config) { c.Alarm.Period = 45 }, wantErr: "period"},
		{name: "zero evaluation periods", mutate: func(c *Config) { c.Alarm.EvaluationPeriods = 0 }, wantErr: "evaluation_periods"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Region = ""
	cfg.Alarm.Period = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
	assert.Contains(t, err.Error(), "alarm.period")
}

func TestValidateHighResolutionPeriods(t *testing.T) {
	for _, p := range []int32{10, 30, 60, 300} {
		cfg := Default()
		cfg.Alarm.Period = p
		assert.NoError(t, cfg.Validate(), "period %d", p)
	}
}
