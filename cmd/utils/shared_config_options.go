package utils

import (
	"go/types"

	"github.com/stellar/go/support/config"

	"github.com/innosystem/dispatch-platform-backend/internal/crashtracker"
)

func CrashTrackerTypeConfigOption(targetPointer interface{}) *config.ConfigOption {
	return &config.ConfigOption{
		Name:           "crash-tracker-type",
		Usage:          `Crash tracker type. Options: "SENTRY", "DRY_RUN"`,
		OptType:        types.String,
		CustomSetValue: SetConfigOptionCrashTrackerType,
		ConfigKey:      targetPointer,
		FlagDefault:    string(crashtracker.CrashTrackerTypeDryRun),
		Required:       true,
	}
}

func MetricTypeConfigOption(targetPointer interface{}) *config.ConfigOption {
	return &config.ConfigOption{
		Name:           "metrics-type",
		Usage:          `Metric monitor type. Options: "PROMETHEUS"`,
		OptType:        types.String,
		CustomSetValue: SetConfigOptionMetricType,
		ConfigKey:      targetPointer,
		FlagDefault:    "PROMETHEUS",
		Required:       true,
	}
}

func RedisURLConfigOption(targetPointer interface{}) *config.ConfigOption {
	return &config.ConfigOption{
		Name:        "redis-url",
		Usage:       "Redis URL used by the queue broker",
		OptType:     types.String,
		ConfigKey:   targetPointer,
		FlagDefault: "redis://127.0.0.1:6379",
		Required:    true,
	}
}
