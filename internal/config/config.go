package config

import (
	"flag"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}
type MysqlCfg struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
}
type RabbitCfg struct {
	URL string `mapstructure:"url"`
}
type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PaymentCfg tunes the intent lifecycle.
type PaymentCfg struct {
	IntentExpireMin int    `mapstructure:"intentExpireMin"`
	CacheTTLSec     int    `mapstructure:"cacheTTLSec"`
	AmountTolerance string `mapstructure:"amountTolerance"`
}

// ProviderCfg is the bank-transfer settlement account. It is injected into the
// provider at construction, never read from env at call time.
type ProviderCfg struct {
	BankCode       string `mapstructure:"bankCode"`
	AccountNumber  string `mapstructure:"accountNumber"`
	AccountName    string `mapstructure:"accountName"`
	ApiKey         string `mapstructure:"apiKey"`
	ApiUrl         string `mapstructure:"apiUrl"`
	TransferPrefix string `mapstructure:"transferPrefix"`
	TimeoutSec     int    `mapstructure:"timeoutSec"`
}

type Root struct {
	Server   ServerCfg   `mapstructure:"server"`
	Mysql    MysqlCfg    `mapstructure:"mysql"`
	RabbitMQ RabbitCfg   `mapstructure:"rabbitmq"`
	Redis    RedisCfg    `mapstructure:"redis"`
	Payment  PaymentCfg  `mapstructure:"payment"`
	Provider ProviderCfg `mapstructure:"provider"`
}

var C Root

func Init() {
	env := flag.String("env", "dev", "config env: dev|prod")
	flag.Parse()

	v := viper.New()
	v.SetConfigFile("config/config." + *env + ".yaml")
	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("read config file failed: %v", err)
	}
	if err := v.Unmarshal(&C); err != nil {
		log.Fatalf("unmarshal config failed: %v", err)
	}

	// sane defaults
	if strings.TrimSpace(C.Server.Port) == "" {
		C.Server.Port = "8080"
	}
	if C.Payment.IntentExpireMin <= 0 {
		C.Payment.IntentExpireMin = 15
	}
	if C.Payment.CacheTTLSec <= 0 {
		C.Payment.CacheTTLSec = 300
	}
	if strings.TrimSpace(C.Payment.AmountTolerance) == "" {
		C.Payment.AmountTolerance = "0.01"
	}
	if strings.TrimSpace(C.Provider.TransferPrefix) == "" {
		C.Provider.TransferPrefix = "DH"
	}
	if C.Provider.TimeoutSec <= 0 {
		C.Provider.TimeoutSec = 10
	}
}
