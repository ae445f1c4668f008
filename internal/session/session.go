// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session summarizes IPv4 traffic as a table of flows, each with a
// bounded sampling budget. Payloads accumulate per flow until they are ripe
// for emission as packet entries; payloads that look close to random are
// discarded and their flows stop sampling.
package session

import (
	"github.com/ClusterCockpit/reproduce/internal/fluentd"
)

const (
	// MaxAge is the number of emission rounds an idle flow survives.
	MaxAge = 128
	// MaxSampleSize caps the payload bytes sampled from one flow over its
	// lifetime, and the bytes buffered at any time.
	MaxSampleSize = 2048
	// MinSampleSize is the smallest buffered payload worth emitting.
	MinSampleSize = 128

	// sessionExtraBytes is the serialized cost of the five fixed
	// sub-records a packet entry carries (keys plus bin-framed values),
	// as accounted by fluentd.AppendPacket.
	sessionExtraBytes = 26 + 23
	// messageLabelLen covers the "message" record key plus the entry
	// framing slack when sizing an emission against a byte ceiling.
	messageLabelLen = 8 + 8
)

// sessionV4 is a single IPv4 flow.
type sessionV4 struct {
	srcAddr      uint32
	dstAddr      uint32
	srcPort      uint16
	dstPort      uint16
	proto        uint8
	eventID      uint64
	age          int
	sampling     bool
	bytesSampled int
	payload      []byte
}

// Traffic is a summary of network traffic as a collection of flows.
type Traffic struct {
	sessions     map[uint64]*sessionV4
	messageData  int
	entropyRatio float64
	scratch      [256]int
}

// NewTraffic returns an empty traffic table. Buffered payloads whose
// entropy ratio exceeds entropyRatio are treated as near-random and
// discarded.
func NewTraffic(entropyRatio float64) *Traffic {
	return &Traffic{
		sessions:     make(map[uint64]*sessionV4),
		entropyRatio: entropyRatio,
	}
}

// MessageData returns the total payload bytes currently buffered across
// all flows.
func (t *Traffic) MessageData() int {
	return t.messageData
}

// SessionCount returns the number of tracked flows.
func (t *Traffic) SessionCount() int {
	return len(t.sessions)
}

// UpdateSession absorbs up to MaxSampleSize cumulative bytes of data into
// the flow identified by the 5-tuple, creating the flow on first sight.
// It reports whether a new flow was created.
func (t *Traffic) UpdateSession(
	srcAddr, dstAddr uint32,
	srcPort, dstPort uint16,
	proto uint8,
	data []byte,
	eventID uint64,
) bool {
	hash := Hash(srcAddr, dstAddr, srcPort, dstPort, proto)
	readLen := min(len(data), MaxSampleSize)

	if s, ok := t.sessions[hash]; ok {
		if !s.sampling || s.bytesSampled+len(s.payload) >= MaxSampleSize {
			return false
		}
		readLen = min(readLen, MaxSampleSize-(s.bytesSampled+len(s.payload)))
		s.payload = append(s.payload, data[:readLen]...)
		t.messageData += readLen
		return false
	}

	s := &sessionV4{
		srcAddr:  srcAddr,
		dstAddr:  dstAddr,
		srcPort:  srcPort,
		dstPort:  dstPort,
		proto:    proto,
		eventID:  eventID,
		sampling: true,
	}
	if readLen < MaxSampleSize {
		s.payload = make([]byte, readLen, MaxSampleSize)
	} else {
		s.payload = make([]byte, readLen)
	}
	copy(s.payload, data[:readLen])
	t.sessions[hash] = s
	t.messageData += readLen
	return true
}

// MakeNextMessage scans all flows once, appending ripe payloads to msg as
// packet entries until msg reaches maxLen. Flows that are not sampling or
// hold less than MinSampleSize age; once past MaxAge they are removed in a
// second pass together with whatever they still buffer.
// It returns eventID with its 24-bit sequence advanced by the number of
// entries emitted.
func (t *Traffic) MakeNextMessage(eventID uint64, msg *fluentd.SizedMessage, maxLen int) uint64 {
	var removal []uint64
	seqNo := (eventID & 0x0000_0000_ffff_ff00) >> 8

	for hash, s := range t.sessions {
		if !s.sampling || len(s.payload) < MinSampleSize {
			if s.age >= MaxAge {
				removal = append(removal, hash)
			}
			s.age++
			continue
		}

		if Entropy(s.payload, &t.scratch)/MaximumEntropy(len(s.payload)) > t.entropyRatio {
			// Near-random payload: stop sampling this flow.
			s.sampling = false
			s.bytesSampled = 0
			t.messageData -= len(s.payload)
			s.payload = s.payload[:0]
			continue
		}

		if msg.SerializedLen()+len(s.payload)+sessionExtraBytes+messageLabelLen > maxLen {
			continue
		}

		_ = msg.AppendPacket(s.eventID, "message", s.payload,
			s.srcAddr, s.dstAddr, s.srcPort, s.dstPort, s.proto)
		s.bytesSampled += len(s.payload)
		s.age = 0
		seqNo++
		if s.bytesSampled >= MaxSampleSize {
			s.sampling = false
		}
		t.messageData -= len(s.payload)
		s.payload = s.payload[:0]
		if msg.SerializedLen() >= maxLen {
			break
		}
	}

	for _, hash := range removal {
		t.messageData -= len(t.sessions[hash].payload)
		delete(t.sessions, hash)
	}

	return (eventID & 0xffff_ffff_0000_00ff) | ((seqNo & 0x00ff_ffff) << 8)
}

// Hash maps a flow 5-tuple to its table key. The hash is symmetric in
// (src, sport) and (dst, dport) so both directions of a flow collide.
func Hash(srcAddr, dstAddr uint32, srcPort, dstPort uint16, proto uint8) uint64 {
	return ((uint64(srcAddr) + uint64(dstAddr)) << 31) +
		(uint64(proto) << 17) +
		uint64(srcPort) + uint64(dstPort)
}
