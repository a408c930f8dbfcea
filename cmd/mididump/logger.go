package main

import "go.uber.org/zap"

func newLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}
