package config

import (
	"fmt"
	"time"

	coreconfig "github.com/go-core-fx/config"
)

// Config is built once at startup and injected into every component.
// Portal field codes (field_*) identify the user fields of the device
// smart process; they differ per portal and have no sane defaults.
type Config struct {
	Port     int    `koanf:"port"`
	BasePath string `koanf:"base_path"`

	WebhookLink string `koanf:"bx_link"`
	CryptoKey   string `koanf:"crypto_key"`
	CryptoIV    string `koanf:"crypto_iv"`
	EnvFile     string `koanf:"env_file"`

	EntityTypeID    int    `koanf:"spa_entity_type_id"`
	OwnerTypeSymbol string `koanf:"spa_owner_type"`
	CategoryID      int    `koanf:"category_id"`
	DealStageID     string `koanf:"deal_stage_id"`
	StageSent       string `koanf:"stage_sent"`

	FieldSerial       string `koanf:"field_serial"`
	FieldName         string `koanf:"field_name"`
	FieldDefects      string `koanf:"field_defects"`
	FieldVerification string `koanf:"field_verification"`
	FieldSumServices  string `koanf:"field_sum_services"`
	FieldDealID       string `koanf:"field_deal_id"`

	CatalogSections []int  `koanf:"catalog_sections"`
	PageSize        int    `koanf:"page_size"`
	BaseCurrency    string `koanf:"base_currency"`

	Timeout time.Duration `koanf:"timeout"`
	LogFile string        `koanf:"log_file"`
	Debug   bool          `koanf:"debug"`
}

func New() (Config, error) {
	cfg := Config{
		Port:            8080,
		BasePath:        "/form_geokurs",
		EnvFile:         ".env",
		OwnerTypeSymbol: "Tb1",
		CategoryID:      11,
		DealStageID:     "C11:NEW",
		CatalogSections: []int{653, 654},
		PageSize:        50,
		BaseCurrency:    "KZT",
		Timeout:         20 * time.Second,
		LogFile:         "./geokurs-form.log",
		Debug:           false,
	}

	if err := coreconfig.Load(&cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	required := []struct {
		name string
		ok   bool
	}{
		{"spa_entity_type_id", c.EntityTypeID != 0},
		{"field_serial", c.FieldSerial != ""},
		{"field_defects", c.FieldDefects != ""},
		{"field_verification", c.FieldVerification != ""},
		{"field_sum_services", c.FieldSumServices != ""},
		{"field_deal_id", c.FieldDealID != ""},
		{"stage_sent", c.StageSent != ""},
	}
	for _, r := range required {
		if !r.ok {
			return fmt.Errorf("missing required config value %q", r.name)
		}
	}
	return nil
}
