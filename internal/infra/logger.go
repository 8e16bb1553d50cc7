// README: zap logger construction.
package infra

import "go.uber.org/zap"

// NewLogger returns a development logger for local runs and a production logger otherwise.
func NewLogger(local bool) (*zap.Logger, error) {
	if local {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
