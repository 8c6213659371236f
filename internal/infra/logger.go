// README: Structured logger construction.
package infra

import "go.uber.org/zap"

func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
