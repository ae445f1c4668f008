// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package converter normalizes input units into batch entries. The log
// converter treats a unit as one log line; the packet converter decodes an
// Ethernet/IPv4 frame down to its L4 payload, optionally feeding a traffic
// sampler instead of the batch under construction.
package converter

import (
	"errors"

	"github.com/google/gopacket/layers"

	"github.com/ClusterCockpit/reproduce/internal/fluentd"
	"github.com/ClusterCockpit/reproduce/internal/matcher"
	"github.com/ClusterCockpit/reproduce/internal/session"
)

var (
	ErrUnsupportedLinkType = errors.New("unsupported link type")
	ErrInvalidEthernet     = errors.New("invalid Ethernet frame")
	ErrInvalidIPv4         = errors.New("invalid IPv4 packet")
	ErrInvalidICMP         = errors.New("invalid ICMP packet")
	ErrInvalidTCP          = errors.New("invalid TCP packet")
	ErrInvalidUDP          = errors.New("invalid UDP packet")
)

// Converter maps one input unit into the message under construction.
// Convert reports whether an entry was appended (or the unit passed
// through); false with a nil error means the unit was filtered out.
type Converter interface {
	Convert(eventID uint64, input []byte, msg *fluentd.SizedMessage) (bool, error)
}

// LogConverter appends each line as a "message" entry unless the pattern
// matcher claims it.
type LogConverter struct {
	matcher *matcher.Matcher
}

// NewLog returns a log converter. m may be nil.
func NewLog(m *matcher.Matcher) *LogConverter {
	return &LogConverter{matcher: m}
}

func (c *LogConverter) Convert(eventID uint64, input []byte, msg *fluentd.SizedMessage) (bool, error) {
	if c.matcher != nil && c.matcher.Scan(input) {
		return false, nil
	}
	if err := msg.AppendRaw(eventID, "message", input); err != nil {
		return false, err
	}
	return true, nil
}

// PacketConverter extracts the L4 payload of Ethernet/IPv4 frames. With a
// traffic table attached, payloads go to the flow sampler instead of the
// message.
type PacketConverter struct {
	linkType layers.LinkType
	matcher  *matcher.Matcher
	traffic  *session.Traffic
}

// NewPacket returns a packet converter for the capture's link type.
// m and traffic may be nil; a non-nil traffic enables sampling mode.
func NewPacket(linkType layers.LinkType, m *matcher.Matcher, traffic *session.Traffic) *PacketConverter {
	return &PacketConverter{linkType: linkType, matcher: m, traffic: traffic}
}

func (c *PacketConverter) Convert(eventID uint64, input []byte, msg *fluentd.SizedMessage) (bool, error) {
	if c.linkType != layers.LinkTypeEthernet {
		return false, ErrUnsupportedLinkType
	}

	rest, ethertype, err := parseEthernetFrame(input)
	if err != nil {
		return false, err
	}
	if ethertype != 0x0800 {
		// Only IPv4 is reproduced; other ethertypes are filtered out.
		return false, nil
	}

	ip, proto, err := parseIPv4Packet(rest)
	if err != nil {
		return false, err
	}

	var payload []byte
	var srcPort, dstPort uint16
	switch proto {
	case 0x01:
		payload, err = parseICMPPacket(ip.payload)
	case 0x06:
		payload, srcPort, dstPort, err = parseTCPPacket(ip.payload)
	case 0x11:
		payload, srcPort, dstPort, err = parseUDPPacket(ip.payload)
	default:
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if c.matcher != nil && c.matcher.Scan(payload) {
		return false, nil
	}
	if c.traffic != nil {
		c.traffic.UpdateSession(ip.srcAddr, ip.dstAddr, srcPort, dstPort, proto, payload, eventID)
		return true, nil
	}
	if err := msg.AppendRaw(eventID, "message", payload); err != nil {
		return false, err
	}
	return true, nil
}
