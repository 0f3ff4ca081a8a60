package main

import "time"

type Config struct {
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret       string        `env:"JWT_SECRET,required=true"`
	HistoryLimit    int           `env:"HISTORY_LIMIT,default=50"`
	DebugPort       int           `env:"DEBUG_PORT,default=0"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
