package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initLogger создает и настраивает логгер.
// "production" включает JSON-логи уровня info, уровни debug/info/warn/error
// задают уровень development-логгера.
func initLogger(logLevel string) (*zap.Logger, error) {
	var cfg zap.Config

	if logLevel == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		if level, err := zapcore.ParseLevel(logLevel); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	return logger.Named("ordersvc"), nil
}
