// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package producer

import (
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/ClusterCockpit/reproduce/internal/config"
)

type kafkaSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka returns a broker producer delivering to the given Kafka topic.
// brokers is a comma-separated host:port list. periodic enables the
// wall-clock flush used for live captures and growing inputs.
func NewKafka(brokers, topic string, queueSize int, periodSeconds int64, periodic bool, overrides *config.BrokerOverrides) (Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Timeout = ackTimeout
	cfg.Producer.Return.Successes = true
	cfg.Producer.MaxMessageBytes = config.MaxQueueSize + 1024
	cfg.Net.KeepAlive = connectionIdleTimeout
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}

	p, err := sarama.NewSyncProducer(strings.Split(brokers, ","), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Kafka producer: %w", err)
	}
	return newBrokerProducer(&kafkaSender{producer: p, topic: topic}, queueSize, periodSeconds, periodic), nil
}

func applyOverrides(cfg *sarama.Config, overrides *config.BrokerOverrides) error {
	if overrides == nil {
		return nil
	}
	if overrides.ClientID != "" {
		cfg.ClientID = overrides.ClientID
	}
	switch overrides.Compression {
	case "":
	case "none":
		cfg.Producer.Compression = sarama.CompressionNone
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		return fmt.Errorf("unknown compression codec %q", overrides.Compression)
	}
	if overrides.RequiredAcks != nil {
		cfg.Producer.RequiredAcks = sarama.RequiredAcks(*overrides.RequiredAcks)
	}
	if overrides.MaxRetries > 0 {
		cfg.Producer.Retry.Max = overrides.MaxRetries
	}
	return nil
}

func (s *kafkaSender) send(record []byte) error {
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(record),
	})
	if err != nil {
		return fmt.Errorf("sending to topic %s: %w", s.topic, err)
	}
	return nil
}

func (s *kafkaSender) close() error {
	return s.producer.Close()
}
