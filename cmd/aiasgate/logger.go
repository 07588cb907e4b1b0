// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/logger"
)

const (
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "simple"
)

// initLoggerFromCLI initializes the logger from CLI flags and environment
// variables. Priority: CLI flags > env vars > defaults.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	logLevel := cliLogLevel
	if logLevel == "" {
		logLevel = os.Getenv(LogLevelEnvVar)
	}
	if logLevel == "" {
		logLevel = "info"
	}

	logFile := cliLogFile
	if logFile == "" {
		logFile = os.Getenv(LogFileEnvVar)
	}

	logFormat := cliLogFormat
	if logFormat == "" {
		logFormat = os.Getenv(LogFormatEnvVar)
	}
	if logFormat == "" {
		logFormat = DefaultLogFormat
	}

	return initLogger(logLevel, logFile, logFormat)
}

// initLoggerFromConfig applies the config file's logging section. Serve
// calls this after loading when neither CLI flags nor env vars picked
// the settings, so a file-based deployment still controls its logs.
func initLoggerFromConfig(cfg config.LoggingConfig) (func(), error) {
	switch cfg.Output {
	case "stdout":
		level, err := logger.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		logger.Init(level, os.Stdout, cfg.Format)
		return nil, nil
	case "", "stderr":
		return initLogger(cfg.Level, "", cfg.Format)
	default:
		return initLogger(cfg.Level, cfg.Output, cfg.Format)
	}
}

func initLogger(logLevel, logFile, logFormat string) (func(), error) {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output *os.File
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	} else {
		output = os.Stderr
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}

// loggingOverridden reports whether any CLI flag or env var picked the
// logger settings. When true, the config file's logging section is not
// applied.
func loggingOverridden(cli *CLI) bool {
	if cli.LogLevel != "" || cli.LogFile != "" || cli.LogFormat != "" {
		return true
	}
	return os.Getenv(LogLevelEnvVar) != "" ||
		os.Getenv(LogFileEnvVar) != "" ||
		os.Getenv(LogFormatEnvVar) != ""
}
