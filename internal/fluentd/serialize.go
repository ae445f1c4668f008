// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fluentd

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// SerializeTo appends the canonical MessagePack encoding of the message to
// buf. The number of bytes written equals SerializedLen.
func (m *SizedMessage) SerializeTo(buf *bytes.Buffer) {
	buf.WriteByte(0x93) // fixarray of [tag, entries, option]
	writeStr(buf, m.tag)

	writeArrayHeader(buf, len(m.entries))
	for i := range m.entries {
		e := &m.entries[i]
		buf.WriteByte(0x92) // fixarray of [time, record]
		writeUint(buf, e.Time)
		writeMapHeader(buf, len(e.Record))
		for _, f := range e.Record {
			writeStr(buf, f.Key)
			writeBin(buf, f.Value)
		}
	}

	if m.option == nil {
		buf.WriteByte(0xc0) // nil
		return
	}
	writeMapHeader(buf, len(m.option))
	keys := make([]string, 0, len(m.option))
	for k := range m.option {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(buf, k)
		writeStr(buf, m.option[k])
	}
}

// writeUint emits the smallest unsigned encoding, matching uintLen.
func writeUint(buf *bytes.Buffer, i uint64) {
	switch {
	case i < 1<<7:
		buf.WriteByte(byte(i))
	case i < 1<<8:
		buf.WriteByte(0xcc)
		buf.WriteByte(byte(i))
	case i < 1<<16:
		buf.WriteByte(0xcd)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(i))
		buf.Write(b[:])
	case i < 1<<32:
		buf.WriteByte(0xce)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(i))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xcf)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], i)
		buf.Write(b[:])
	}
}

// writeStr emits the smallest str encoding, matching strLen.
func writeStr(buf *bytes.Buffer, s string) {
	n := len(s)
	switch {
	case n < 32:
		buf.WriteByte(0xa0 | byte(n))
	case n < 1<<8:
		buf.WriteByte(0xd9)
		buf.WriteByte(byte(n))
	case n < 1<<16:
		buf.WriteByte(0xda)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xdb)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
	buf.WriteString(s)
}

// writeBin emits the smallest bin encoding, matching binLen.
func writeBin(buf *bytes.Buffer, v []byte) {
	n := len(v)
	switch {
	case n < 1<<8:
		buf.WriteByte(0xc4)
		buf.WriteByte(byte(n))
	case n < 1<<16:
		buf.WriteByte(0xc5)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xc6)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
	buf.Write(v)
}

func writeArrayHeader(buf *bytes.Buffer, n int) {
	switch {
	case n < 16:
		buf.WriteByte(0x90 | byte(n))
	case n < 1<<16:
		buf.WriteByte(0xdc)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xdd)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
}

func writeMapHeader(buf *bytes.Buffer, n int) {
	switch {
	case n < 16:
		buf.WriteByte(0x80 | byte(n))
	case n < 1<<16:
		buf.WriteByte(0xde)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xdf)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
}
