package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Session   SessionConfig   `mapstructure:"session"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"` // "postgres" or "sqlite"
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"` // sqlite path or libsql:// URL
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type ScreeningConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LedgerConfig struct {
	Mode            string        `mapstructure:"mode"` // "eth" or "memory"
	RpcUrl          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	ChainID         int64         `mapstructure:"chain_id"`
	KeystorePath    string        `mapstructure:"keystore_path"` // directory of Web3 Secret Storage files
	Password        string        `mapstructure:"password"` // usually LEDGER_PASSWORD
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	ScanDepth       uint64        `mapstructure:"scan_depth"`
}

type LifecycleConfig struct {
	CreateAttempts      int           `mapstructure:"create_attempts"`
	PendingAbandonAfter time.Duration `mapstructure:"pending_abandon_after"`
}

type SessionConfig struct {
	HmacSecret string `mapstructure:"hmac_secret"`
	Issuer     string `mapstructure:"issuer"`
}

type JobsConfig struct {
	ReconcileSpec    string        `mapstructure:"reconcile_spec"`
	ObserverInterval time.Duration `mapstructure:"observer_interval"`
	RelayInterval    time.Duration `mapstructure:"relay_interval"`
}

var Global Config

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.grpc_port", "50051")

	viper.SetDefault("db.driver", "postgres")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "daan_user")
	viper.SetDefault("db.password", "daan_password")
	viper.SetDefault("db.name", "daan_db")
	viper.SetDefault("db.url", "daan.db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("screening.url", "http://localhost:5000/predict")
	viper.SetDefault("screening.timeout", 10*time.Second)

	viper.SetDefault("ledger.mode", "memory")
	viper.SetDefault("ledger.rpc_url", "https://sepolia.era.zksync.dev")
	viper.SetDefault("ledger.chain_id", 300)
	viper.SetDefault("ledger.keystore_path", "keystore")
	viper.SetDefault("ledger.confirm_timeout", 60*time.Second)
	viper.SetDefault("ledger.scan_depth", 256)

	viper.SetDefault("lifecycle.create_attempts", 2)
	viper.SetDefault("lifecycle.pending_abandon_after", time.Hour)

	viper.SetDefault("session.issuer", "daan-accounts")

	viper.SetDefault("jobs.reconcile_spec", "@every 1m")
	viper.SetDefault("jobs.observer_interval", 15*time.Second)
	viper.SetDefault("jobs.relay_interval", 500*time.Millisecond)
}
