package logger

import "go.uber.org/zap"

// New builds the process logger: JSON at info level, or a console logger
// at debug level when env is "development".
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
