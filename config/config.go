// Package config loads and validates the stack file.
//
// Every field has a default, so an empty or missing file describes the
// stack exactly: a 10.0.0.0/16 VPC in us-east-1, the "ai-data" bucket behind
// an S3 gateway endpoint, the "ai-secret" secret and the "ai-alarm" CPU alarm.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"slices"
	"strings"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"gopkg.in/yaml.v3"
)

// Config describes one stack.
type Config struct {
	Name        string         `yaml:"name"`
	Region      string         `yaml:"region"`
	EndpointURL string         `yaml:"endpoint_url,omitempty"`
	Network     NetworkConfig  `yaml:"network"`
	Bucket      BucketConfig   `yaml:"bucket"`
	Endpoint    EndpointConfig `yaml:"endpoint"`
	Secret      SecretConfig   `yaml:"secret"`
	Alarm       AlarmConfig    `yaml:"alarm"`
}

// NetworkConfig holds the VPC settings.
type NetworkConfig struct {
	CIDR string `yaml:"cidr"`
}

// BucketConfig holds the S3 bucket settings.
type BucketConfig struct {
	Name string `yaml:"name"`
}

// EndpointConfig holds the VPC endpoint and its connection notification.
type EndpointConfig struct {
	Type               string   `yaml:"type"`
	NotificationEvents []string `yaml:"notification_events"`
	// TopicARN wins over TopicName. With only a name, the ARN is built from the
	// caller's account and the stack region.
	TopicARN  string `yaml:"topic_arn,omitempty"`
	TopicName string `yaml:"topic_name"`
}

// SecretConfig holds the Secrets Manager settings. An empty Value is replaced
// by a random one at creation time.
type SecretConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Value       string `yaml:"value,omitempty"`
	ForceDelete bool   `yaml:"force_delete"`
}

// AlarmConfig holds the CloudWatch metric alarm.
type AlarmConfig struct {
	Name               string  `yaml:"name"`
	Namespace          string  `yaml:"namespace"`
	MetricName         string  `yaml:"metric_name"`
	Statistic          string  `yaml:"statistic"`
	ComparisonOperator string  `yaml:"comparison_operator"`
	Threshold          float64 `yaml:"threshold"`
	Period             int32   `yaml:"period"`
	EvaluationPeriods  int32   `yaml:"evaluation_periods"`
}

// Default returns the stack as the tool ships it.
func Default() *Config {
	return &Config{
		Name:   "ai",
		Region: "us-east-1",
		Network: NetworkConfig{
			CIDR: "10.0.0.0/16",
		},
		Bucket: BucketConfig{
			Name: "ai-data",
		},
		Endpoint: EndpointConfig{
			Type:               "Gateway",
			NotificationEvents: []string{"Accept"},
			TopicName:          "my-topic",
		},
		Secret: SecretConfig{
			Name:        "ai-secret",
			ForceDelete: true,
		},
		Alarm: AlarmConfig{
			Name:               "ai-alarm",
			Namespace:          "AWS/EC2",
			MetricName:         "CPUUtilization",
			Statistic:          string(cwtypes.StatisticAverage),
			ComparisonOperator: string(cwtypes.ComparisonOperatorGreaterThanOrEqualToThreshold),
			Threshold:          80,
			Period:             60,
			EvaluationPeriods:  1,
		},
	}
}

// Load reads a stack file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ServiceName is the endpoint service for S3 in the stack region.
func (c *Config) ServiceName() string {
	return fmt.Sprintf("com.amazonaws.%s.s3", c.Region)
}

// TopicARNFor returns the notification topic ARN for the given account.
func (c *Config) TopicARNFor(account string) string {
	if c.Endpoint.TopicARN != "" {
		return c.Endpoint.TopicARN
	}
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", c.Region, account, c.Endpoint.TopicName)
}

var (
	stackNameRE  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,31}$`)
	bucketNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	regionRE     = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)

	notificationEvents = []string{"Accept", "Connect", "Delete", "Reject"}

	// ServiceName and TopicARNFor build com.amazonaws. and arn:aws: names,
	// which only hold in the commercial partition.
	otherPartitionPrefixes = []string{"cn-", "us-gov-", "us-iso", "eu-isoe-"}
)

func outsideCommercialPartition(region string) bool {
	for _, p := range otherPartitionPrefixes {
		if strings.HasPrefix(region, p) {
			return true
		}
	}
	return false
}

// Validate checks the whole config and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !stackNameRE.MatchString(c.Name) {
		errs = append(errs, fmt.Errorf("name %q must be 1-32 lowercase letters, digits or hyphens", c.Name))
	}
	if !regionRE.MatchString(c.Region) {
		errs = append(errs, fmt.Errorf("region %q is not a valid AWS region", c.Region))
	} else if outsideCommercialPartition(c.Region) {
		errs = append(errs, fmt.Errorf("region %q is outside the aws partition", c.Region))
	}

	errs = append(errs, validateCIDR(c.Network.CIDR))

	if !bucketNameRE.MatchString(c.Bucket.Name) || strings.Contains(c.Bucket.Name, "..") || net.ParseIP(c.Bucket.Name) != nil {
		errs = append(errs, fmt.Errorf("bucket name %q is not a valid S3 bucket name", c.Bucket.Name))
	}

	if c.Endpoint.Type != "Gateway" {
		errs = append(errs, fmt.Errorf("endpoint type %q is not supported; only Gateway endpoints route through a route table", c.Endpoint.Type))
	}
	if len(c.Endpoint.NotificationEvents) == 0 {
		errs = append(errs, errors.New("endpoint.notification_events must not be empty"))
	}
	for _, ev := range c.Endpoint.NotificationEvents {
		if !slices.Contains(notificationEvents, ev) {
			errs = append(errs, fmt.Errorf("notification event %q must be one of %v", ev, notificationEvents))
		}
	}
	if c.Endpoint.TopicARN == "" && c.Endpoint.TopicName == "" {
		errs = append(errs, errors.New("endpoint needs topic_arn or topic_name"))
	}
	if c.Endpoint.TopicARN != "" && !strings.HasPrefix(c.Endpoint.TopicARN, "arn:") {
		errs = append(errs, fmt.Errorf("topic_arn %q is not an ARN", c.Endpoint.TopicARN))
	}

	if c.Secret.Name == "" {
		errs = append(errs, errors.New("secret.name must not be empty"))
	}

	errs = append(errs, c.Alarm.validate())

	return errors.Join(errs...)
}

func validateCIDR(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("network.cidr %q: %w", cidr, err)
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return fmt.Errorf("network.cidr %q must be IPv4", cidr)
	}
	// VPCs accept netmasks between /16 and /28.
	if ones < 16 || ones > 28 {
		return fmt.Errorf("network.cidr %q must have a prefix between /16 and /28", cidr)
	}
	return nil
}

func (a AlarmConfig) validate() error {
	var errs []error
	if a.Name == "" {
		errs = append(errs, errors.New("alarm.name must not be empty"))
	}
	if a.Namespace == "" || a.MetricName == "" {
		errs = append(errs, errors.New("alarm.namespace and alarm.metric_name must not be empty"))
	}
	if !slices.Contains(cwtypes.Statistic("").Values(), cwtypes.Statistic(a.Statistic)) {
		errs = append(errs, fmt.Errorf("alarm.statistic %q is not a CloudWatch statistic", a.Statistic))
	}
	if !slices.Contains(cwtypes.ComparisonOperator("").Values(), cwtypes.ComparisonOperator(a.ComparisonOperator)) {
		errs = append(errs, fmt.Errorf("alarm.comparison_operator %q is not a CloudWatch comparison operator", a.ComparisonOperator))
	}
	// High-resolution periods are 10 or 30 seconds; standard periods are multiples of 60.
	if a.Period != 10 && a.Period != 30 && (a.Period <= 0 || a.Period%60 != 0) {
		errs = append(errs, fmt.Errorf("alarm.period %d must be 10, 30 or a multiple of 60", a.Period))
	}
	if a.EvaluationPeriods < 1 {
		errs = append(errs, fmt.Errorf("alarm.evaluation_periods %d must be at least 1", a.EvaluationPeriods))
	}
	return errors.Join(errs...)
}
