// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package producer delivers serialized batches to the configured sink.
// Broker sinks buffer batches in a small in-memory queue that is sent as
// one record when flushed; file sinks append newline-delimited batches;
// the null sink discards everything.
package producer

import "time"

// MaxBytes is the hard ceiling for a single serialized batch handed to
// Produce. This is a per-batch budget; the micro-queue threshold (-q) is
// a separate per-send budget.
const MaxBytes = 100_000

const (
	// queueTerminator separates queued batches within one broker record.
	queueTerminator byte = 0x00

	connectionIdleTimeout = 540 * time.Second
	ackTimeout            = 5 * time.Second
)

// Producer accepts serialized batches. With flush set the batch (and any
// queued predecessors) is delivered immediately.
type Producer interface {
	Produce(msg []byte, flush bool) error
	Close() error
}

// sender transmits one record to a broker. It is the seam between the
// micro-queue and the concrete broker client.
type sender interface {
	send(record []byte) error
	close() error
}

// brokerProducer queues serialized batches and sends them as a single
// record when flushed. The queue is dropped when a send fails.
type brokerProducer struct {
	s         sender
	queue     []byte
	queueSize int
	period    time.Duration
	periodic  bool
	lastFlush time.Time
	now       func() time.Time
}

func newBrokerProducer(s sender, queueSize int, periodSeconds int64, periodic bool) *brokerProducer {
	return &brokerProducer{
		s:         s,
		queueSize: queueSize,
		period:    time.Duration(periodSeconds) * time.Second,
		periodic:  periodic,
		lastFlush: time.Now(),
		now:       time.Now,
	}
}

func (p *brokerProducer) Produce(msg []byte, flush bool) error {
	p.queue = append(p.queue, msg...)
	if flush || len(p.queue) >= p.queueSize ||
		(p.periodic && p.now().Sub(p.lastFlush) > p.period) {
		record := p.queue
		p.queue = p.queue[:0]
		p.lastFlush = p.now()
		return p.s.send(record)
	}
	p.queue = append(p.queue, queueTerminator)
	return nil
}

func (p *brokerProducer) Close() error {
	if len(p.queue) > 0 {
		record := p.queue
		p.queue = nil
		if err := p.s.send(record); err != nil {
			p.s.close()
			return err
		}
	}
	return p.s.close()
}
