/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT        = "5004"
	DEFAULT_NOTARY_URL  = "https://notary.grid.tf"
	DEFAULT_SENDER      = "broker@grid.tf"
	DEFAULT_MINER_FEE   = 100000000
	DEFAULT_EMAIL_QUEUE = "gridbroker:email"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"GRIDBROKER_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"GRIDBROKER_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"GRIDBROKER_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"GRIDBROKER_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"GRIDBROKER_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"GRIDBROKER_REDIS_SKIP_TLS_VERIFY"`
}

type WalletConfig struct {
	Name      string `json:"name" envconfig:"GRIDBROKER_WALLET_NAME"`
	Url       string `json:"url" envconfig:"GRIDBROKER_WALLET_URL"`
	MinHeight uint64 `json:"min_height" envconfig:"GRIDBROKER_WALLET_MIN_HEIGHT"`
	MinerFee  int64  `json:"miner_fee" envconfig:"GRIDBROKER_WALLET_MINER_FEE"`
	Timeout   int    `json:"timeout_seconds" envconfig:"GRIDBROKER_WALLET_TIMEOUT"`
}

type ServiceConfig struct {
	Url     string `json:"url"`
	Timeout int    `json:"timeout_seconds"`
}

type FulfillmentConfig struct {
	Workers               int `json:"workers" envconfig:"GRIDBROKER_FULFILLMENT_WORKERS"`
	MaxAttempts           int `json:"max_attempts" envconfig:"GRIDBROKER_FULFILLMENT_MAX_ATTEMPTS"`
	InitialDelaySeconds   int `json:"initial_delay_seconds" envconfig:"GRIDBROKER_FULFILLMENT_INITIAL_DELAY"`
	AttemptTimeoutSeconds int `json:"attempt_timeout_seconds" envconfig:"GRIDBROKER_FULFILLMENT_ATTEMPT_TIMEOUT"`
	LockTTLSeconds        int `json:"lock_ttl_seconds" envconfig:"GRIDBROKER_FULFILLMENT_LOCK_TTL"`
}

type LeaseConfig struct {
	DurationHours        int `json:"duration_hours" envconfig:"GRIDBROKER_LEASE_DURATION_HOURS"`
	CleanupIntervalHours int `json:"cleanup_interval_hours" envconfig:"GRIDBROKER_LEASE_CLEANUP_INTERVAL_HOURS"`
	WatchIntervalSeconds int `json:"watch_interval_seconds" envconfig:"GRIDBROKER_WATCH_INTERVAL_SECONDS"`
}

type EmailConfig struct {
	SendgridApiKey string `json:"sendgrid_api_key" envconfig:"GRIDBROKER_SENDGRID_API_KEY"`
	Sender         string `json:"sender" envconfig:"GRIDBROKER_EMAIL_SENDER"`
	Queue          string `json:"queue" envconfig:"GRIDBROKER_EMAIL_QUEUE"`
	MonitoringPort string `json:"monitoring_port" envconfig:"GRIDBROKER_EMAIL_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"GRIDBROKER_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"GRIDBROKER_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"GRIDBROKER_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"GRIDBROKER_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string            `json:"project_name" envconfig:"GRIDBROKER_PROJECT_NAME"`
	EnableTelemetry bool              `json:"enable_telemetry" envconfig:"GRIDBROKER_ENABLE_TELEMETRY"`
	Server          ServerConfig      `json:"server"`
	DataSource      DataSourceConfig  `json:"data_source"`
	Redis           RedisConfig       `json:"redis"`
	Wallet          WalletConfig      `json:"wallet"`
	Notary          ServiceConfig     `json:"notary"`
	Directory       ServiceConfig     `json:"directory"`
	Robot           ServiceConfig     `json:"robot"`
	WebGateway      string            `json:"web_gateway" envconfig:"GRIDBROKER_WEB_GATEWAY"`
	Fulfillment     FulfillmentConfig `json:"fulfillment"`
	Lease           LeaseConfig       `json:"lease"`
	Email           EmailConfig       `json:"email"`
	Notification    Notification      `json:"notification"`
	RateLimit       RateLimitConfig   `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("gridbroker", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called gridbroker.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Grid Broker"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Wallet.Name == "" {
		log.Println("Error: Wallet name is empty. It's a required field.")
		return errors.New("wallet name is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Wallet.Name = strings.TrimSpace(cnf.Wallet.Name)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Notary.Url == "" {
		cnf.Notary.Url = DEFAULT_NOTARY_URL
	}
	if cnf.Notary.Timeout == 0 {
		cnf.Notary.Timeout = 30
	}
	if cnf.Directory.Timeout == 0 {
		cnf.Directory.Timeout = 30
	}
	if cnf.Robot.Timeout == 0 {
		cnf.Robot.Timeout = 300
	}
	if cnf.Wallet.Timeout == 0 {
		cnf.Wallet.Timeout = 60
	}
	if cnf.Wallet.MinerFee == 0 {
		cnf.Wallet.MinerFee = DEFAULT_MINER_FEE
	}

	cnf.Fulfillment.applyDefaults()
	cnf.Lease.applyDefaults()

	if cnf.Email.Sender == "" {
		cnf.Email.Sender = DEFAULT_SENDER
	}
	if cnf.Email.Queue == "" {
		cnf.Email.Queue = DEFAULT_EMAIL_QUEUE
	}
	if cnf.Email.MonitoringPort == "" {
		cnf.Email.MonitoringPort = "5005"
	}
	if cnf.Email.SendgridApiKey == "" {
		log.Println("Warning: sendgrid api key not specified. Emails will not be delivered.")
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (f *FulfillmentConfig) applyDefaults() {
	if f.Workers <= 0 {
		f.Workers = 1
	}
	if f.MaxAttempts <= 0 {
		f.MaxAttempts = 4
	}
	if f.InitialDelaySeconds <= 0 {
		f.InitialDelaySeconds = 5
	}
	if f.AttemptTimeoutSeconds <= 0 {
		f.AttemptTimeoutSeconds = 300
	}
	if f.LockTTLSeconds <= 0 {
		f.LockTTLSeconds = 1800
	}
}

func (l *LeaseConfig) applyDefaults() {
	if l.DurationHours <= 0 {
		l.DurationHours = 7 * 24
	}
	if l.CleanupIntervalHours <= 0 {
		l.CleanupIntervalHours = 12
	}
	if l.WatchIntervalSeconds <= 0 {
		l.WatchIntervalSeconds = 60
	}
}

// LeaseDuration is the lifetime granted to a new reservation.
func (cnf *Configuration) LeaseDuration() time.Duration {
	return time.Duration(cnf.Lease.DurationHours) * time.Hour
}

// TimeoutDuration converts a service timeout in seconds to a duration.
func (s ServiceConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
// Defaults are applied so tests only need to set what they care about.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Fulfillment.applyDefaults()
	mockConfig.Lease.applyDefaults()
	if mockConfig.Wallet.MinerFee == 0 {
		mockConfig.Wallet.MinerFee = DEFAULT_MINER_FEE
	}
	if mockConfig.Email.Sender == "" {
		mockConfig.Email.Sender = DEFAULT_SENDER
	}
	if mockConfig.Email.Queue == "" {
		mockConfig.Email.Queue = DEFAULT_EMAIL_QUEUE
	}
	if mockConfig.Notary.Timeout == 0 {
		mockConfig.Notary.Timeout = 30
	}
	if mockConfig.Wallet.Timeout == 0 {
		mockConfig.Wallet.Timeout = 60
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
