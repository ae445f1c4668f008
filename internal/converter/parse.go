// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package converter

import "encoding/binary"

// ipv4Header carries the fields extracted from a fixed 20-byte IPv4
// header together with the remaining bytes.
type ipv4Header struct {
	srcAddr uint32
	dstAddr uint32
	payload []byte
}

// parseEthernetFrame strips the 14-byte Ethernet header, stepping over a
// single 802.1Q tag if present, and returns the inner ethertype.
func parseEthernetFrame(b []byte) ([]byte, uint16, error) {
	if len(b) < 14 {
		return nil, 0, ErrInvalidEthernet
	}
	ethertype := binary.BigEndian.Uint16(b[12:14])
	if ethertype != 0x8100 {
		return b[14:], ethertype, nil
	}
	if len(b) < 18 {
		return nil, 0, ErrInvalidEthernet
	}
	return b[18:], binary.BigEndian.Uint16(b[16:18]), nil
}

// parseIPv4Packet reads the protocol byte and addresses and steps past the
// 20-byte header. Options are not parsed: when the header carries them,
// the option bytes are read as the start of the L4 header.
func parseIPv4Packet(b []byte) (ipv4Header, uint8, error) {
	if len(b) < 20 {
		return ipv4Header{}, 0, ErrInvalidIPv4
	}
	return ipv4Header{
		srcAddr: binary.BigEndian.Uint32(b[12:16]),
		dstAddr: binary.BigEndian.Uint32(b[16:20]),
		payload: b[20:],
	}, b[9], nil
}

func parseICMPPacket(b []byte) ([]byte, error) {
	if len(b) < 8 {
		return nil, ErrInvalidICMP
	}
	return b[8:], nil
}

func parseTCPPacket(b []byte) ([]byte, uint16, uint16, error) {
	if len(b) < 13 {
		return nil, 0, 0, ErrInvalidTCP
	}
	dataOffset := int(b[12] >> 4)
	if dataOffset < 5 {
		return nil, 0, 0, ErrInvalidTCP
	}
	headerLen := dataOffset * 4
	if len(b) < headerLen {
		return nil, 0, 0, ErrInvalidTCP
	}
	return b[headerLen:], binary.BigEndian.Uint16(b[0:2]), binary.BigEndian.Uint16(b[2:4]), nil
}

func parseUDPPacket(b []byte) ([]byte, uint16, uint16, error) {
	if len(b) < 8 {
		return nil, 0, 0, ErrInvalidUDP
	}
	return b[8:], binary.BigEndian.Uint16(b[0:2]), binary.BigEndian.Uint16(b[2:4]), nil
}
