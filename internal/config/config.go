// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the immutable run configuration assembled from the
// command line and validates it before the controller starts.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// InputType classifies what the input path points at.
type InputType int

const (
	InputPcap InputType = iota
	InputPcapNg
	InputNic
	InputLog
	InputDir
)

func (t InputType) String() string {
	switch t {
	case InputPcap:
		return "PCAP"
	case InputPcapNg:
		return "PCAPNG"
	case InputNic:
		return "NIC"
	case InputLog:
		return "LOG"
	case InputDir:
		return "DIR"
	}
	return "UNKNOWN"
}

// OutputType classifies where batches are delivered.
type OutputType int

const (
	OutputNone OutputType = iota
	OutputBroker
	OutputFile
)

func (t OutputType) String() string {
	switch t {
	case OutputNone:
		return "NONE"
	case OutputBroker:
		return "BROKER"
	case OutputFile:
		return "FILE"
	}
	return "UNKNOWN"
}

// MaxQueueSize bounds the broker micro-queue (-q).
const MaxQueueSize = 900_000

// Config is the run configuration. It is not mutated after Validate.
type Config struct {
	ModeEval       bool   // report statistics at end of run
	ModeGrow       bool   // keep reading a growing input
	ModePollingDir bool   // rescan the input directory
	ModeSampling   bool   // summarize packet flows instead of forwarding payloads
	CountSkip      int    // units to skip before converting
	CountSent      int    // stop after this many processed units; 0 = unbounded
	QueueSize      int    // broker micro-queue flush threshold in bytes
	QueuePeriod    int64  // broker micro-queue flush period in seconds
	Input          string // file, directory, or capture device
	Output         string // file path, "none", or empty for the broker
	OffsetPrefix   string // suffix of the offset side-file
	PacketFilter   string // BPF filter expression for live capture
	Broker         string // broker list (host:port,... or nats://...)
	Topic          string // broker topic
	BrokerConfig   string // path of the broker override file (-k)
	PatternFile    string // path of the regex pattern file
	FilePrefix     string // file name prefix in directory mode

	DatasourceID uint8
	InitialSeqNo uint64
	EntropyRatio float64
}

// OutputTypeOf derives the output kind from the output flag value.
func OutputTypeOf(output string) OutputType {
	switch output {
	case "":
		return OutputBroker
	case "none":
		return OutputNone
	default:
		return OutputFile
	}
}

// Validate checks the cross-field constraints of the configuration.
func (c *Config) Validate() error {
	if OutputTypeOf(c.Output) == OutputBroker {
		if c.Broker == "" {
			return errors.New("broker (-b) required")
		}
		if c.Topic == "" {
			return errors.New("topic (-t) required")
		}
	}
	if c.Output == "none" && c.Input == "" {
		return errors.New("input (-i) required if output (-o) is \"none\"")
	}
	if c.QueueSize <= 0 || c.QueueSize > MaxQueueSize {
		return fmt.Errorf("queue size must be in 1..%d", MaxQueueSize)
	}
	if c.QueuePeriod <= 0 {
		return errors.New("queue period must be positive")
	}
	if c.DatasourceID == 0 {
		return errors.New("data source ID must be in 1..255")
	}
	if c.InitialSeqNo >= 1<<24 {
		return errors.New("initial sequence number must be below 2^24")
	}
	if c.EntropyRatio <= 0 || c.EntropyRatio > 1 {
		return errors.New("entropy ratio must be in (0,1]")
	}
	return nil
}

// String renders the configuration as key=value lines for the startup
// printout.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode_eval=%v\n", c.ModeEval)
	fmt.Fprintf(&sb, "mode_grow=%v\n", c.ModeGrow)
	fmt.Fprintf(&sb, "mode_polling_dir=%v\n", c.ModePollingDir)
	fmt.Fprintf(&sb, "mode_sampling=%v\n", c.ModeSampling)
	fmt.Fprintf(&sb, "count_sent=%d\n", c.CountSent)
	fmt.Fprintf(&sb, "count_skip=%d\n", c.CountSkip)
	fmt.Fprintf(&sb, "queue_size=%d\n", c.QueueSize)
	fmt.Fprintf(&sb, "queue_period=%d\n", c.QueuePeriod)
	fmt.Fprintf(&sb, "input=%s\n", c.Input)
	fmt.Fprintf(&sb, "output=%s\n", c.Output)
	fmt.Fprintf(&sb, "offset_prefix=%s\n", c.OffsetPrefix)
	fmt.Fprintf(&sb, "packet_filter=%s\n", c.PacketFilter)
	fmt.Fprintf(&sb, "broker=%s\n", c.Broker)
	fmt.Fprintf(&sb, "topic=%s\n", c.Topic)
	fmt.Fprintf(&sb, "pattern_file=%s\n", c.PatternFile)
	fmt.Fprintf(&sb, "file_prefix=%s\n", c.FilePrefix)
	fmt.Fprintf(&sb, "datasource_id=%d", c.DatasourceID)
	return sb.String()
}
