// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fluentd builds Fluentd forward-mode messages while tracking the
// exact MessagePack-serialized length of the message under construction.
// The cached length lets callers pack a batch right up to a byte ceiling
// with a constant-time check before every append.
package fluentd

import (
	"encoding/binary"
	"errors"
)

// ErrTooLong is returned when a tag, key, or value would exceed the
// largest length MessagePack can represent.
var ErrTooLong = errors.New("too long (expected <= 4294967295)")

// emptyMessageSize is the serialized size of a message with an empty tag,
// no entries, and no option: fixarray[fixstr, fixarray, nil].
const emptyMessageSize = 4

// packetExtraBytes is the serialized size of the five fixed sub-records a
// packet entry carries in addition to its payload record: the "src", "dst",
// "sport", "dport" and "proto" keys (26 bytes as fixstr) plus their
// bin8-framed big-endian values (23 bytes).
const packetExtraBytes = 26 + 23

// Field is a single key/value pair of an entry record. Values are binary
// strings on the wire.
type Field struct {
	Key   string
	Value []byte
}

// Entry is one timestamped record of a forward-mode message.
type Entry struct {
	Time   uint64
	Record []Field
}

// SizedMessage is a Fluentd forward-mode message [tag, entries, option]
// whose exact serialized length is known at all times.
type SizedMessage struct {
	tag     string
	entries []Entry
	option  map[string]string
	size    int
}

// New returns an empty message.
func New() *SizedMessage {
	return &SizedMessage{size: emptyMessageSize}
}

// Len returns the number of entries.
func (m *SizedMessage) Len() int {
	return len(m.entries)
}

// IsEmpty reports whether the message holds no entries.
func (m *SizedMessage) IsEmpty() bool {
	return len(m.entries) == 0
}

// Tag returns the current tag.
func (m *SizedMessage) Tag() string {
	return m.tag
}

// Entries returns the appended entries. The returned slice is owned by the
// message and valid until the next Clear.
func (m *SizedMessage) Entries() []Entry {
	return m.entries
}

// SerializedLen returns the exact number of bytes SerializeTo will emit.
func (m *SizedMessage) SerializedLen() int {
	return m.size
}

// Clear resets the message to the empty state.
func (m *SizedMessage) Clear() {
	m.tag = ""
	m.entries = m.entries[:0]
	m.option = nil
	m.size = emptyMessageSize
}

// SetTag replaces the message tag.
func (m *SizedMessage) SetTag(tag string) error {
	newLen, err := strLen(len(tag))
	if err != nil {
		return err
	}
	oldLen, _ := strLen(len(m.tag))
	m.size += newLen - oldLen
	m.tag = tag
	return nil
}

// AppendRaw appends an entry holding a single key/value record. The value
// bytes are copied.
func (m *SizedMessage) AppendRaw(time uint64, key string, value []byte) error {
	keyLen, err := strLen(len(key))
	if err != nil {
		return err
	}
	valueLen, err := binLen(len(value))
	if err != nil {
		return err
	}
	if err := m.growEntries(); err != nil {
		return err
	}
	m.size += uintLen(time) + 2 + keyLen + valueLen

	m.entries = append(m.entries, Entry{
		Time:   time,
		Record: []Field{{Key: key, Value: cloneBytes(value)}},
	})
	return nil
}

// AppendPacket appends an entry holding the payload record plus the five
// fixed sub-records identifying the flow the payload was sampled from.
func (m *SizedMessage) AppendPacket(
	time uint64,
	key string,
	payload []byte,
	srcIP, dstIP uint32,
	srcPort, dstPort uint16,
	proto uint8,
) error {
	keyLen, err := strLen(len(key))
	if err != nil {
		return err
	}
	payloadLen, err := binLen(len(payload))
	if err != nil {
		return err
	}
	if err := m.growEntries(); err != nil {
		return err
	}
	m.size += uintLen(time) + 2 + keyLen + payloadLen + packetExtraBytes

	src := make([]byte, 4)
	binary.BigEndian.PutUint32(src, srcIP)
	dst := make([]byte, 4)
	binary.BigEndian.PutUint32(dst, dstIP)
	sport := make([]byte, 2)
	binary.BigEndian.PutUint16(sport, srcPort)
	dport := make([]byte, 2)
	binary.BigEndian.PutUint16(dport, dstPort)

	m.entries = append(m.entries, Entry{
		Time: time,
		Record: []Field{
			{Key: key, Value: cloneBytes(payload)},
			{Key: "src", Value: src},
			{Key: "dst", Value: dst},
			{Key: "sport", Value: sport},
			{Key: "dport", Value: dport},
			{Key: "proto", Value: []byte{proto}},
		},
	})
	return nil
}

// AddOption writes a key/value pair into the option map. Replacing an
// existing key adjusts the size by the value-length delta.
func (m *SizedMessage) AddOption(key, value string) error {
	valueLen, err := strLen(len(value))
	if err != nil {
		return err
	}
	if m.option == nil {
		m.option = make(map[string]string)
	}
	if old, ok := m.option[key]; ok {
		oldLen, _ := strLen(len(old))
		m.option[key] = value
		m.size += valueLen - oldLen
		return nil
	}
	keyLen, err := strLen(len(key))
	if err != nil {
		return err
	}
	m.option[key] = value
	m.size += keyLen + valueLen
	// The map length prefix grows when the map outgrows fixmap or map16.
	switch len(m.option) {
	case 16, 1 << 16:
		m.size += 2
	case 1 << 32:
		delete(m.option, key)
		return ErrTooLong
	}
	return nil
}

// growEntries accounts for the entries array length prefix growing past
// the fixarray and array16 limits, and rejects the array32 limit.
func (m *SizedMessage) growEntries() error {
	switch len(m.entries) {
	case 15, 1<<16 - 1:
		m.size += 2
	case 1<<32 - 1:
		return ErrTooLong
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// uintLen returns the serialized size of an unsigned integer.
func uintLen(i uint64) int {
	switch {
	case i < 1<<7:
		return 1
	case i < 1<<8:
		return 2
	case i < 1<<16:
		return 3
	case i < 1<<32:
		return 5
	default:
		return 9
	}
}

// binLen returns the serialized size of a binary string of length n.
func binLen(n int) (int, error) {
	switch {
	case n < 1<<8:
		return 2 + n, nil
	case n < 1<<16:
		return 3 + n, nil
	case n < 1<<32:
		return 5 + n, nil
	default:
		return 0, ErrTooLong
	}
}

// strLen returns the serialized size of a string of length n.
func strLen(n int) (int, error) {
	if n < 32 {
		return 1 + n, nil
	}
	return binLen(n)
}
