// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package report collects per-run statistics and appends a human-readable
// summary block to the report file when evaluation mode is on.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ClusterCockpit/reproduce/internal/config"
	"github.com/ClusterCockpit/reproduce/internal/util"
)

const (
	pcapFileHeaderLen = 24
	pcapPktHdrLen     = 8
	labelWidth        = 28

	reportDir = "/report"
)

// Report accumulates statistics of one input run.
type Report struct {
	cfg       *config.Config
	inputType config.InputType
	startID   uint32
	endID     uint32
	sumBytes  uint64
	minBytes  int
	maxBytes  int
	avgBytes  float64
	skipBytes int
	skipCnt   int
	procCnt   int
	timeStart time.Time
}

// New returns a statistics collector for one input. All methods are no-ops
// unless evaluation mode is enabled in the configuration.
func New(cfg *config.Config, inputType config.InputType) *Report {
	return &Report{cfg: cfg, inputType: inputType, timeStart: time.Now()}
}

// Start records the first sequence number of the run.
func (r *Report) Start(id uint32) {
	if !r.cfg.ModeEval {
		return
	}
	r.startID = id
	r.timeStart = time.Now()
}

// Process accounts one converted unit of the given size.
func (r *Report) Process(bytes int) {
	if !r.cfg.ModeEval {
		return
	}
	if bytes > r.maxBytes {
		r.maxBytes = bytes
	}
	if bytes < r.minBytes || r.minBytes == 0 {
		r.minBytes = bytes
	}
	r.sumBytes += uint64(bytes)
	r.procCnt++
}

// Skip accounts one unit that was filtered out or failed to convert.
func (r *Report) Skip(bytes int) {
	if !r.cfg.ModeEval {
		return
	}
	r.skipBytes += bytes
	r.skipCnt++
}

// End writes the summary block. The report lands in /report/<topic> when
// that directory exists, in the working directory otherwise.
func (r *Report) End(id uint32) error {
	if !r.cfg.ModeEval {
		return nil
	}

	path := r.cfg.Topic
	if util.IsDirectory(reportDir) {
		path = filepath.Join(reportDir, r.cfg.Topic)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	r.endID = id
	now := time.Now()
	elapsed := now.Sub(r.timeStart)
	if r.procCnt > 0 {
		r.avgBytes = float64(r.sumBytes) / float64(r.procCnt)
	}

	// Totals include the byte overhead the raw input carried around each
	// unit: the capture file header, the per-packet capture header, or
	// the newline terminating each log line.
	var processedBytes uint64
	switch r.inputType {
	case config.InputPcap, config.InputPcapNg:
		processedBytes = r.sumBytes + pcapFileHeaderLen
	case config.InputNic:
		processedBytes = r.sumBytes + pcapPktHdrLen*uint64(r.procCnt)
	case config.InputLog:
		processedBytes = r.sumBytes + uint64(r.procCnt)
	}

	fmt.Fprintln(f, "--------------------------------------------------")
	fmt.Fprintf(f, "%-*s%s\n", labelWidth, "Time:", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "%-*s%s (%s)\n", labelWidth, "Input("+r.inputType.String()+"):",
		r.cfg.Input, humanize.Bytes(processedBytes))
	fmt.Fprintf(f, "%-*s%d\n", labelWidth, "Data source ID:", r.cfg.DatasourceID)
	fmt.Fprintf(f, "%-*s%d-%d\n", labelWidth, "Input ID:", r.startID, r.endID)

	switch config.OutputTypeOf(r.cfg.Output) {
	case config.OutputNone:
		fmt.Fprintln(f, "Output(NONE):")
	case config.OutputBroker:
		fmt.Fprintf(f, "%-*s%s (%s)\n", labelWidth, "Output(BROKER):",
			r.cfg.Broker, r.cfg.Topic)
	case config.OutputFile:
		size := "invalid"
		if util.CheckFileExists(r.cfg.Output) {
			size = humanize.Bytes(uint64(util.GetFilesize(r.cfg.Output)))
		}
		fmt.Fprintf(f, "%-*s%s (%s)\n", labelWidth, "Output(FILE):", r.cfg.Output, size)
	}

	fmt.Fprintf(f, "%-*s%d/%d/%.2f bytes\n", labelWidth, "Statistics (Min/Max/Avg):",
		r.minBytes, r.maxBytes, r.avgBytes)
	fmt.Fprintf(f, "%-*s%d (%s)\n", labelWidth, "Process Count:",
		r.procCnt, humanize.Bytes(processedBytes))
	fmt.Fprintf(f, "%-*s%d (%s)\n", labelWidth, "Skip Count:",
		r.skipCnt, humanize.Bytes(uint64(r.skipBytes)))
	fmt.Fprintf(f, "%-*s%.2f sec\n", labelWidth, "Elapsed Time:", elapsed.Seconds())

	perf := float64(processedBytes)
	if secs := elapsed.Seconds(); secs > 0 {
		perf = float64(processedBytes) / secs
	}
	fmt.Fprintf(f, "%-*s%s/s\n", labelWidth, "Performance:", humanize.Bytes(uint64(perf)))
	return nil
}
