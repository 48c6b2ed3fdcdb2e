package config

import (
	"time"
)

type DB struct {
	Url            string `envconfig:"URL"`
	Driver         string `envconfig:"DRIVER" default:"postgres"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"internal/migrations"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Auth struct {
	Strategy string `envconfig:"STRATEGY" default:"jwt"`
	Jwt      *Jwt   `envconfig:"JWT"`
}

type Redis struct {
	URL          string        `envconfig:"URL" default:"redis://localhost:6379/0"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:""`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type Kafka struct {
	Brokers       string `envconfig:"BROKERS" default:"localhost:9092"`
	GroupID       string `envconfig:"GROUP_ID" default:"topupledger"`
	TopicPrefix   string `envconfig:"TOPIC_PREFIX" default:"topupledger.events"`
	SASLUsername  string `envconfig:"SASL_USERNAME"`
	SASLPassword  string `envconfig:"SASL_PASSWORD"`
	EnableTLS     bool   `envconfig:"ENABLE_TLS" default:"false"`
	SkipTLSVerify bool   `envconfig:"SKIP_TLS_VERIFY" default:"false"`
}

type EventBus struct {
	Driver string `envconfig:"DRIVER" default:"memory"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
	// Storage is "memory" or "redis"; redis shares the counters between replicas.
	Storage     string        `envconfig:"STORAGE" default:"memory"`
}

//revive:disable
type Stripe struct {
	Env           string `envconfig:"ENV" default:"test"`
	ApiKey        string `envconfig:"API_KEY"`
	SigningSecret string `envconfig:"SIGNING_SECRET"`
	PaymentMethod string `envconfig:"PAYMENT_METHOD" default:"pm_card_visa"`
}

//revive:enable

type VisaSim struct {
	ConfirmDelay time.Duration `envconfig:"CONFIRM_DELAY" default:"2s"`
}

type PaymentProviders struct {
	Driver  string   `envconfig:"DRIVER" default:"visa_sim"`
	Stripe  *Stripe  `envconfig:"STRIPE"`
	VisaSim *VisaSim `envconfig:"VISA_SIM"`
}

// Chain configures the settlement contract client.
type Chain struct {
	Driver          string        `envconfig:"DRIVER" default:"sim"`
	RPCURL          string        `envconfig:"RPC_URL" default:"http://127.0.0.1:8545"`
	ContractAddress string        `envconfig:"CONTRACT_ADDRESS"`
	PrivateKey      string        `envconfig:"PRIVATE_KEY"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	GasLimit        uint64        `envconfig:"GAS_LIMIT" default:"300000"`
	ConfirmDelay    time.Duration `envconfig:"CONFIRM_DELAY" default:"1s"`
	// MaxAmountCents is the largest request the simulated contract accepts.
	MaxAmountCents  int64         `envconfig:"MAX_AMOUNT_CENTS" default:"1000000"`
}

// Saga tunes the top-up orchestrator.
type Saga struct {
	CallTimeout   time.Duration `envconfig:"CALL_TIMEOUT" default:"10s"`
	MaxRetries    uint64        `envconfig:"MAX_RETRIES" default:"3"`
	StaleAfter    time.Duration `envconfig:"STALE_AFTER" default:"15m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	Currency      string        `envconfig:"CURRENCY" default:"USD"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[topupledger]"`
}

type Server struct {
	Scheme string `envconfig:"SCHEME" default:"http"`
	Host   string `envconfig:"HOST" default:"localhost"`
	Port   int    `envconfig:"PORT" default:"3000"`
}

type App struct {
	Env              string            `envconfig:"APP_ENV" default:"development"`
	Server           *Server           `envconfig:"SERVER"`
	Log              *Log              `envconfig:"LOG"`
	DB               *DB               `envconfig:"DATABASE"`
	Auth             *Auth             `envconfig:"AUTH"`
	Redis            *Redis            `envconfig:"REDIS"`
	Kafka            *Kafka            `envconfig:"KAFKA"`
	EventBus         *EventBus         `envconfig:"EVENT_BUS"`
	RateLimit        *RateLimit        `envconfig:"RATE_LIMIT"`
	PaymentProviders *PaymentProviders `envconfig:"PAYMENT_PROVIDER"`
	Chain            *Chain            `envconfig:"CHAIN"`
	Saga             *Saga             `envconfig:"SAGA"`
}
