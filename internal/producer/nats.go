// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package producer

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

type natsSender struct {
	conn    *nats.Conn
	subject string
}

// NewNATS returns a broker producer publishing to a NATS subject. The
// micro-queue semantics match the Kafka variant; each flush publishes one
// message and waits for the server round-trip.
func NewNATS(url, subject string, queueSize int, periodSeconds int64, periodic bool, clientID string) (Producer, error) {
	opts := []nats.Option{}
	if clientID != "" {
		opts = append(opts, nats.Name(clientID))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating NATS producer: %w", err)
	}
	return newBrokerProducer(&natsSender{conn: nc, subject: subject}, queueSize, periodSeconds, periodic), nil
}

func (s *natsSender) send(record []byte) error {
	if err := s.conn.Publish(s.subject, record); err != nil {
		return fmt.Errorf("publishing to subject %s: %w", s.subject, err)
	}
	if err := s.conn.FlushTimeout(ackTimeout); err != nil {
		return fmt.Errorf("flushing to subject %s: %w", s.subject, err)
	}
	return nil
}

func (s *natsSender) close() error {
	s.conn.Close()
	return nil
}
