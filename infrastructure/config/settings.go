package config

import (
	"encoding/json"
	"os"

	"github.com/kugelpos/transactional-core/infrastructure/literalparse"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"gopkg.in/yaml.v3"
)

var settingsLogger = logging.NewFromEnv("config")

// ReceiptLine is one header/footer line on a receipt.
type ReceiptLine struct {
	Text  string `yaml:"text" json:"text"`
	Align string `yaml:"align" json:"align"`
}

// StampDutyTier is one row of STAMP_DUTY_MASTER; the first tier whose
// TargetAmount the cash-portion/total-without-tax pair reaches, in list
// order, wins.
type StampDutyTier struct {
	TargetAmount    int64 `yaml:"target_amount" json:"target_amount"`
	StampDutyAmount int64 `yaml:"stamp_duty_amount" json:"stamp_duty_amount"`
}

// Settings holds every per-tenant configuration key the services consume.
type Settings struct {
	ReceiptNoStartValue int64 `env:"RECEIPT_NO_START_VALUE,default=1" yaml:"receipt_no_start_value"`
	ReceiptNoEndValue   int64 `env:"RECEIPT_NO_END_VALUE,default=9999" yaml:"receipt_no_end_value"`

	InvoiceRegistrationNumber string `env:"INVOICE_REGISTRATION_NUMBER" yaml:"invoice_registration_number"`

	ReceiptHeaders []ReceiptLine   `yaml:"receipt_headers"`
	ReceiptFooters []ReceiptLine   `yaml:"receipt_footers"`
	StampDutyMaster []StampDutyTier `yaml:"stamp_duty_master"`

	// Raw variants of the list-valued keys, for deployments that push
	// RECEIPT_HEADERS/RECEIPT_FOOTERS through the environment — the value
	// may arrive as JSON, a python-literal-style string, or a
	// single-quoted variant, all handled by literalparse.
	ReceiptHeadersRaw string `env:"RECEIPT_HEADERS" yaml:"-"`
	ReceiptFootersRaw string `env:"RECEIPT_FOOTERS" yaml:"-"`

	UndeliveredCheckIntervalMinutes    int `env:"UNDELIVERED_CHECK_INTERVAL_IN_MINUTES,default=5" yaml:"undelivered_check_interval_minutes"`
	UndeliveredCheckFailedPeriodMinutes int `env:"UNDELIVERED_CHECK_FAILED_PERIOD_IN_MINUTES,default=60" yaml:"undelivered_check_failed_period_minutes"`
	UndeliveredCheckPeriodHours        int `env:"UNDELIVERED_CHECK_PERIOD_IN_HOURS,default=24" yaml:"undelivered_check_period_hours"`

	DefaultSnapshotSchedule string `env:"DEFAULT_SNAPSHOT_SCHEDULE,default=daily" yaml:"default_snapshot_schedule"`
	DefaultSnapshotRetentionDays int `env:"DEFAULT_SNAPSHOT_RETENTION_DAYS,default=90" yaml:"default_snapshot_retention_days"`
	MinSnapshotRetentionDays     int `env:"MIN_SNAPSHOT_RETENTION_DAYS,default=7" yaml:"min_snapshot_retention_days"`
	MaxSnapshotRetentionDays     int `env:"MAX_SNAPSHOT_RETENTION_DAYS,default=365" yaml:"max_snapshot_retention_days"`

	RoundingMode string `env:"ROUNDING_MODE,default=bankers" yaml:"rounding_mode"`
}

// DefaultSettings returns the struct-tag defaults without touching the environment.
func DefaultSettings() Settings {
	return Settings{
		ReceiptNoStartValue:                 1,
		ReceiptNoEndValue:                   9999,
		UndeliveredCheckIntervalMinutes:     5,
		UndeliveredCheckFailedPeriodMinutes: 60,
		UndeliveredCheckPeriodHours:         24,
		DefaultSnapshotSchedule:             "daily",
		DefaultSnapshotRetentionDays:        90,
		MinSnapshotRetentionDays:            7,
		MaxSnapshotRetentionDays:            365,
		RoundingMode:                        "bankers",
	}
}

// LoadSettings decodes environment-backed fields, then layers a YAML
// per-tenant overrides file on top when yamlPath is non-empty and exists.
func LoadSettings(yamlPath string) (Settings, error) {
	settings := DefaultSettings()
	if err := Decode(&settings); err != nil {
		return settings, err
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil && !os.IsNotExist(err) {
			return settings, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &settings); err != nil {
				return settings, err
			}
		}
	}

	if settings.ReceiptHeadersRaw != "" {
		settings.ReceiptHeaders = parseReceiptLines(settings.ReceiptHeadersRaw)
	}
	if settings.ReceiptFootersRaw != "" {
		settings.ReceiptFooters = parseReceiptLines(settings.ReceiptFootersRaw)
	}
	return settings, nil
}

// parseReceiptLines decodes a raw RECEIPT_HEADERS/RECEIPT_FOOTERS value,
// which may arrive as JSON, a python-literal-style string, or a
// single-quoted variant. A parse failure logs a warning and the receipt
// simply carries no lines, rather than failing startup.
func parseReceiptLines(raw string) []ReceiptLine {
	value, err := literalparse.Parse(raw)
	if err != nil {
		settingsLogger.WithError(err).Warn("could not parse receipt line setting, continuing without it")
		return nil
	}
	list, ok := value.([]any)
	if !ok {
		settingsLogger.WithField("value", value).Warn("receipt line setting is not a list, continuing without it")
		return nil
	}
	lines := make([]ReceiptLine, 0, len(list))
	for _, item := range list {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var line ReceiptLine
		if err := json.Unmarshal(data, &line); err == nil {
			lines = append(lines, line)
		}
	}
	return lines
}

// StampDutyFor returns the first matching tier's amount for the given
// cash-portion / total-without-tax pair, or 0 and false if neither
// threshold is reached by any configured tier; first match wins.
func (s Settings) StampDutyFor(cashPortion, totalWithoutTax int64) (int64, bool) {
	for _, tier := range s.StampDutyMaster {
		if cashPortion >= tier.TargetAmount && totalWithoutTax >= tier.TargetAmount {
			return tier.StampDutyAmount, true
		}
	}
	return 0, false
}
