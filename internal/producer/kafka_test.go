// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package producer

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/reproduce/internal/config"
)

func TestApplyOverridesNil(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	require.NoError(t, applyOverrides(cfg, nil))
	assert.Equal(t, sarama.WaitForLocal, cfg.Producer.RequiredAcks)
}

func TestApplyOverrides(t *testing.T) {
	acks := -1
	cfg := sarama.NewConfig()
	require.NoError(t, applyOverrides(cfg, &config.BrokerOverrides{
		ClientID:     "reproduce-7",
		Compression:  "gzip",
		RequiredAcks: &acks,
		MaxRetries:   9,
	}))
	assert.Equal(t, "reproduce-7", cfg.ClientID)
	assert.Equal(t, sarama.CompressionGZIP, cfg.Producer.Compression)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 9, cfg.Producer.Retry.Max)
}

func TestApplyOverridesAcksZero(t *testing.T) {
	// An explicit 0 must override the WaitForLocal default.
	acks := 0
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	require.NoError(t, applyOverrides(cfg, &config.BrokerOverrides{RequiredAcks: &acks}))
	assert.Equal(t, sarama.NoResponse, cfg.Producer.RequiredAcks)

	// An absent field keeps the default.
	cfg = sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	require.NoError(t, applyOverrides(cfg, &config.BrokerOverrides{}))
	assert.Equal(t, sarama.WaitForLocal, cfg.Producer.RequiredAcks)
}

func TestApplyOverridesUnknownCompression(t *testing.T) {
	cfg := sarama.NewConfig()
	require.Error(t, applyOverrides(cfg, &config.BrokerOverrides{Compression: "brotli"}))
}
