package main

import "go.uber.org/zap"

var scanLog = zap.NewNop()

func enableDebugLogging() (err error) {
	scanLog, err = zap.NewDevelopment()
	return err
}
