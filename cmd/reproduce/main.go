// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/joho/godotenv"

	"github.com/ClusterCockpit/reproduce/internal/config"
	"github.com/ClusterCockpit/reproduce/internal/controller"
	"github.com/ClusterCockpit/reproduce/internal/report"
)

func main() {
	cliInit()
	cclog.Init(flagLogLevel, flagLogDateTime)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		cclog.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if flagDatasourceID == 0 || flagDatasourceID > 255 {
		cclog.Fatalf("invalid data source ID: %d", flagDatasourceID)
	}

	cfg := &config.Config{
		ModeEval:       flagEval,
		ModeGrow:       flagGrow,
		ModePollingDir: flagPollDir,
		CountSkip:      flagSkip,
		CountSent:      flagCount,
		QueueSize:      flagQueueSize,
		QueuePeriod:    flagQueuePeriod,
		Input:          flagInput,
		Output:         flagOutput,
		OffsetPrefix:   flagOffsetPrefix,
		PacketFilter:   flagPacketFilter,
		Broker:         flagBroker,
		Topic:          flagTopic,
		BrokerConfig:   flagBrokerConfig,
		PatternFile:    flagPatternFile,
		FilePrefix:     flagFilePrefix,
		DatasourceID:   uint8(flagDatasourceID),
		InitialSeqNo:   flagInitialSeqNo,
		EntropyRatio:   flagEntropyRatio,
	}
	// Flow sampling is tied to the entropy ratio being given explicitly.
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "E" {
			cfg.ModeSampling = true
		}
	})

	if err := cfg.Validate(); err != nil {
		cclog.Errorf("ERROR: %s", err.Error())
		os.Exit(1)
	}
	fmt.Println(cfg)

	if addr := os.Getenv("REPRODUCE_METRICS_ADDR"); addr != "" {
		report.ServeMetrics(addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("reproduce start")
	if err := controller.New(cfg).Run(ctx); err != nil {
		cclog.Errorf("ERROR: %s", err.Error())
		os.Exit(1)
	}
	fmt.Println("reproduce end")
}
