// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package controller drives the reproduction pipeline: it reads units
// from the input source, converts them into batch entries, packs batches
// up to the producer's byte ceiling, delivers them, and persists the
// resume offset. A cancelled context flushes the current batch and
// commits the offset before returning.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/ClusterCockpit/reproduce/internal/config"
	"github.com/ClusterCockpit/reproduce/internal/converter"
	"github.com/ClusterCockpit/reproduce/internal/fluentd"
	"github.com/ClusterCockpit/reproduce/internal/matcher"
	"github.com/ClusterCockpit/reproduce/internal/producer"
	"github.com/ClusterCockpit/reproduce/internal/report"
	"github.com/ClusterCockpit/reproduce/internal/session"
)

const (
	// batchTag tags every batch sent downstream.
	batchTag = "REproduce"

	// bufferSafetyGap is subtracted from the producer's per-batch ceiling
	// to absorb framing overhead the length check cannot see.
	bufferSafetyGap = 1024

	growRetryInterval = 3 * time.Second
	dirPollInterval   = 10 * time.Second

	liveSnaplen = 65536
)

// Controller owns the batch under construction, the sequence counter, and
// the traffic table of a run.
type Controller struct {
	cfg      *config.Config
	producer producer.Producer
	seqNo    uint64
}

// New returns a controller for the given configuration.
func New(cfg *config.Config) *Controller {
	return &Controller{cfg: cfg, seqNo: 1}
}

// Run executes the configured reproduction until the input is exhausted
// or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	inputType, err := probeInput(c.cfg.Input)
	if err != nil {
		return err
	}
	cclog.Infof("input=%s, input type=%s", c.cfg.Input, inputType)

	p, err := c.newProducer(inputType == config.InputNic)
	if err != nil {
		return err
	}
	c.producer = p
	defer c.producer.Close()

	if inputType == config.InputDir {
		return c.runSplit(ctx)
	}
	return c.runSingle(ctx, c.cfg.Input, inputType)
}

// runSplit processes the files below the input directory in ascending
// name order, rescanning while directory polling is on.
func (c *Controller) runSplit(ctx context.Context) error {
	processed := make(map[string]bool)
	for {
		if ctx.Err() != nil {
			return nil
		}
		files, err := filesInDir(c.cfg.Input, c.cfg.FilePrefix, processed)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			if c.cfg.ModePollingDir {
				if !sleepCtx(ctx, dirPollInterval) {
					return nil
				}
				continue
			}
			cclog.Error("no input file")
			return nil
		}

		sort.Strings(files)
		for _, file := range files {
			if ctx.Err() != nil {
				return nil
			}
			inputType, err := probeInput(file)
			if err != nil || inputType == config.InputDir {
				cclog.Warnf("skipping %s: not a usable input", file)
				processed[file] = true
				continue
			}
			cclog.Infof("processing %s", file)
			if err := c.runSingle(ctx, file, inputType); err != nil {
				return err
			}
			processed[file] = true
		}

		if !c.cfg.ModePollingDir {
			return nil
		}
	}
}

// runSingle processes one input file or device until exhaustion,
// cancellation, or the send limit.
func (c *Controller) runSingle(ctx context.Context, path string, inputType config.InputType) error {
	rep := report.New(c.cfg, inputType)
	offsetPath := c.cfg.Input + "_" + c.cfg.OffsetPrefix

	offset := 0
	switch {
	case c.cfg.CountSkip > 0:
		offset = c.cfg.CountSkip
	case c.cfg.OffsetPrefix != "" && inputType != config.InputNic:
		offset = readOffset(offsetPath)
	}

	if c.seqNo == 1 {
		if c.cfg.InitialSeqNo > 0 {
			c.seqNo = c.cfg.InitialSeqNo
		} else if offset > 0 {
			c.seqNo = uint64(offset) + 1
		}
	}

	var traffic *session.Traffic
	if c.cfg.ModeSampling && inputType != config.InputLog {
		traffic = session.NewTraffic(c.cfg.EntropyRatio)
	}

	src, conv, err := c.openSource(path, inputType, traffic)
	if err != nil {
		return fmt.Errorf("failed to set the converter: %w", err)
	}
	defer src.Close()

	if inputType != config.InputNic {
		for i := 0; i < offset; i++ {
			if _, err := src.Next(); err != nil {
				cclog.Warnf("failed to skip entries: %s", err.Error())
				break
			}
		}
	}

	rep.Start(uint32(c.seqNo & 0x00ff_ffff))
	msg := fluentd.New()
	msg.SetTag(batchTag)
	maxLen := producer.MaxBytes - bufferSafetyGap

	convCnt := 0
	processedCnt := 0
	producerFailed := false

	for {
		if ctx.Err() != nil {
			break
		}

		unit, err := src.Next()
		if errors.Is(err, io.EOF) {
			if c.cfg.ModeGrow && !c.cfg.ModePollingDir {
				if !sleepCtx(ctx, growRetryInterval) {
					break
				}
				continue
			}
			break
		}
		if err != nil {
			cclog.Warnf("cannot read from %s: %s", path, err.Error())
			break
		}

		if msg.SerializedLen()+len(unit) >= maxLen {
			if err := c.flush(msg); err != nil {
				cclog.Errorf("cannot produce batch: %s", err.Error())
				producerFailed = true
				break
			}
		}

		c.seqNo++
		convCnt++
		appended, cerr := conv.Convert(c.eventID(), unit, msg)
		switch {
		case cerr != nil:
			cclog.Debugf("failed to convert input data: %s", cerr.Error())
			rep.Skip(len(unit))
			report.SkippedTotal.Inc()
		case !appended:
			rep.Skip(len(unit))
			report.SkippedTotal.Inc()
		default:
			rep.Process(len(unit))
			report.ProcessedTotal.Inc()
			processedCnt++
		}

		if traffic != nil {
			newID := traffic.MakeNextMessage(c.eventID(), msg, maxLen)
			c.seqNo = (newID >> 8) & 0x00ff_ffff
		}

		if c.cfg.CountSent != 0 && processedCnt >= c.cfg.CountSent {
			break
		}
	}

	// Drain the traffic table: emit every ripe flow that still fits, one
	// batch at a time. Flows below the minimum sample size are dropped.
	if traffic != nil && !producerFailed {
		for {
			before := msg.Len()
			newID := traffic.MakeNextMessage(c.eventID(), msg, maxLen)
			c.seqNo = (newID >> 8) & 0x00ff_ffff
			if msg.Len() == before {
				break
			}
			if err := c.flush(msg); err != nil {
				cclog.Errorf("cannot produce batch: %s", err.Error())
				producerFailed = true
				break
			}
		}
	}

	if !msg.IsEmpty() && !producerFailed {
		if err := c.flush(msg); err != nil {
			cclog.Errorf("cannot produce batch: %s", err.Error())
		}
	}

	if c.cfg.OffsetPrefix != "" && inputType != config.InputNic {
		if err := writeOffset(offsetPath, offset+convCnt); err != nil {
			cclog.Warnf("cannot write to offset file: %s", err.Error())
		}
	}

	if err := rep.End(uint32((c.seqNo - 1) & 0x00ff_ffff)); err != nil {
		cclog.Warnf("cannot write report: %s", err.Error())
	}
	return nil
}

// flush serializes the batch, hands it to the producer, and resets the
// batch to an empty tagged message.
func (c *Controller) flush(msg *fluentd.SizedMessage) error {
	var buf bytes.Buffer
	buf.Grow(msg.SerializedLen())
	msg.SerializeTo(&buf)
	err := c.producer.Produce(buf.Bytes(), true)
	msg.Clear()
	msg.SetTag(batchTag)
	if err == nil {
		report.ProducedBatchesTotal.Inc()
	}
	return err
}

// eventID composes the event identifier for the current sequence number:
// unix seconds in the upper half, the 24-bit sequence, and the data
// source ID in the low byte. The timestamp moves one second ahead when
// the sequence wraps so identifiers stay monotone.
func (c *Controller) eventID() uint64 {
	baseTime := uint64(time.Now().Unix())
	if c.seqNo&0x00ff_ffff == 0 {
		baseTime++
	}
	return baseTime<<32 | ((c.seqNo & 0x00ff_ffff) << 8) | uint64(c.cfg.DatasourceID)
}

func (c *Controller) newProducer(isNic bool) (producer.Producer, error) {
	switch config.OutputTypeOf(c.cfg.Output) {
	case config.OutputFile:
		cclog.Infof("output=%s, output type=FILE", c.cfg.Output)
		return producer.NewFile(c.cfg.Output)
	case config.OutputBroker:
		overrides, err := config.LoadBrokerOverrides(c.cfg.BrokerConfig)
		if err != nil {
			return nil, err
		}
		periodic := c.cfg.ModeGrow || isNic
		if strings.HasPrefix(c.cfg.Broker, "nats://") {
			cclog.Infof("output=%s, output type=NATS", c.cfg.Broker)
			clientID := ""
			if overrides != nil {
				clientID = overrides.ClientID
			}
			return producer.NewNATS(c.cfg.Broker, c.cfg.Topic,
				c.cfg.QueueSize, c.cfg.QueuePeriod, periodic, clientID)
		}
		cclog.Infof("output=%s, output type=KAFKA", c.cfg.Broker)
		return producer.NewKafka(c.cfg.Broker, c.cfg.Topic,
			c.cfg.QueueSize, c.cfg.QueuePeriod, periodic, overrides)
	default:
		cclog.Infof("output=%s, output type=NONE", c.cfg.Output)
		return producer.NewNull(), nil
	}
}

// openSource opens the input and pairs it with the matching converter.
func (c *Controller) openSource(path string, inputType config.InputType, traffic *session.Traffic) (source, converter.Converter, error) {
	var m *matcher.Matcher
	if c.cfg.PatternFile != "" {
		var err error
		m, err = matcher.FromFile(c.cfg.PatternFile)
		if err != nil {
			return nil, nil, err
		}
		cclog.Infof("pattern file=%s", c.cfg.PatternFile)
	}

	switch inputType {
	case config.InputLog:
		src, err := openLogSource(path)
		if err != nil {
			return nil, nil, err
		}
		return src, converter.NewLog(m), nil

	case config.InputPcap:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		r, err := pcapgo.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return &packetSource{src: r, closer: f},
			converter.NewPacket(r.LinkType(), m, traffic), nil

	case config.InputPcapNg:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		r, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return &packetSource{src: r, closer: f},
			converter.NewPacket(r.LinkType(), m, traffic), nil

	case config.InputNic:
		h, err := pcap.OpenLive(path, liveSnaplen, true, pcap.BlockForever)
		if err != nil {
			return nil, nil, fmt.Errorf("opening device %s: %w", path, err)
		}
		if c.cfg.PacketFilter != "" {
			if err := h.SetBPFFilter(c.cfg.PacketFilter); err != nil {
				h.Close()
				return nil, nil, fmt.Errorf("setting filter: %w", err)
			}
		}
		return &packetSource{src: h, closer: handleCloser{h}},
			converter.NewPacket(h.LinkType(), m, traffic), nil
	}
	return nil, nil, fmt.Errorf("invalid input type %s", inputType)
}

// filesInDir lists the regular files below dir whose base name starts
// with prefix, excluding already processed paths.
func filesInDir(dir, prefix string, processed map[string]bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(d.Name(), prefix) {
			return nil
		}
		if processed[path] {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// sleepCtx sleeps for d and reports false when ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
