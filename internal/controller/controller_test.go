// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package controller

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ClusterCockpit/reproduce/internal/config"
	"github.com/ClusterCockpit/reproduce/internal/producer"
)

type forwardMessage struct {
	_msgpack struct{} `msgpack:",as_array"`
	Tag      string
	Entries  []forwardEntry
	Option   map[string]string
}

type forwardEntry struct {
	_msgpack struct{} `msgpack:",as_array"`
	Time     uint64
	Record   map[string][]byte
}

// recordingProducer captures every produced batch.
type recordingProducer struct {
	batches [][]byte
}

func (p *recordingProducer) Produce(msg []byte, flush bool) error {
	c := make([]byte, len(msg))
	copy(c, msg)
	p.batches = append(p.batches, c)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) decode(t *testing.T) []forwardMessage {
	t.Helper()
	msgs := make([]forwardMessage, 0, len(p.batches))
	for _, b := range p.batches {
		var m forwardMessage
		require.NoError(t, msgpack.Unmarshal(b, &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func (p *recordingProducer) entries(t *testing.T) []forwardEntry {
	t.Helper()
	var entries []forwardEntry
	for _, m := range p.decode(t) {
		entries = append(entries, m.Entries...)
	}
	return entries
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func tcpFrame(srcIP, dstIP uint32, srcPort, dstPort uint16, payload []byte) []byte {
	var b bytes.Buffer
	b.Write(bytes.Repeat([]byte{0xff}, 6))
	b.Write(make([]byte, 6))
	b.Write([]byte{0x08, 0x00})

	ip := make([]byte, 20)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(40+len(payload)))
	ip[8] = 0x40
	ip[9] = 0x06
	binary.BigEndian.PutUint32(ip[12:16], srcIP)
	binary.BigEndian.PutUint32(ip[16:20], dstIP)
	b.Write(ip)

	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	tcp[12] = 0x50
	b.Write(tcp)
	b.Write(payload)
	return b.Bytes()
}

func writePcap(t *testing.T, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for i, frame := range frames {
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}, frame))
	}
}

func TestOffsetStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.log_r")

	assert.Equal(t, 0, readOffset(path))

	require.NoError(t, writeOffset(path, 42))
	assert.Equal(t, 42, readOffset(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42", string(content))

	require.NoError(t, os.WriteFile(path, []byte("not a number"), 0o644))
	assert.Equal(t, 0, readOffset(path))

	require.NoError(t, os.WriteFile(path, []byte("-3"), 0o644))
	assert.Equal(t, 0, readOffset(path))
}

func TestProbeInput(t *testing.T) {
	dir := t.TempDir()

	ty, err := probeInput(dir)
	require.NoError(t, err)
	assert.Equal(t, config.InputDir, ty)

	logPath := filepath.Join(dir, "messages.log")
	writeLines(t, logPath, "hello", "world")
	ty, err = probeInput(logPath)
	require.NoError(t, err)
	assert.Equal(t, config.InputLog, ty)

	pcapPath := filepath.Join(dir, "trace.pcap")
	writePcap(t, pcapPath, tcpFrame(1, 2, 3, 4, []byte("x")))
	ty, err = probeInput(pcapPath)
	require.NoError(t, err)
	assert.Equal(t, config.InputPcap, ty)

	ty, err = probeInput(filepath.Join(dir, "no-such-path"))
	require.NoError(t, err)
	assert.Equal(t, config.InputNic, ty)
}

func TestEventIDFormat(t *testing.T) {
	c := &Controller{cfg: &config.Config{DatasourceID: 42}, seqNo: 7}
	id := c.eventID()
	assert.Equal(t, uint64(42), id&0xff)
	assert.Equal(t, uint64(7), (id>>8)&0x00ff_ffff)
	assert.InDelta(t, time.Now().Unix(), int64(id>>32), 2)

	// A wrapped sequence moves the timestamp one second ahead.
	c.seqNo = 1 << 24
	wrapped := c.eventID()
	assert.Equal(t, uint64(0), (wrapped>>8)&0x00ff_ffff)
	assert.InDelta(t, time.Now().Unix()+1, int64(wrapped>>32), 2)
}

func TestRunSingleLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.log")
	writeLines(t, path, "line one", "line two", "line three")

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		OffsetPrefix: "r",
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 9,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSingle(context.Background(), path, config.InputLog))

	entries := rec.entries(t)
	require.Len(t, entries, 3)
	assert.Equal(t, []byte("line one"), entries[0].Record["message"])
	assert.Equal(t, []byte("line three"), entries[2].Record["message"])

	for _, m := range rec.decode(t) {
		assert.Equal(t, "REproduce", m.Tag)
	}

	// Sequence numbers increment by one per line; the data source ID is
	// in the low byte of every event ID.
	for i, e := range entries {
		assert.Equal(t, uint64(9), e.Time&0xff)
		assert.Equal(t, uint64(2+i), (e.Time>>8)&0x00ff_ffff)
	}

	assert.Equal(t, 3, readOffset(path+"_r"))
}

func TestRunSingleResumesFromOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.log")
	writeLines(t, path, "first", "second", "third", "fourth")
	require.NoError(t, writeOffset(path+"_r", 2))

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		OffsetPrefix: "r",
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 1,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSingle(context.Background(), path, config.InputLog))

	entries := rec.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("third"), entries[0].Record["message"])
	assert.Equal(t, []byte("fourth"), entries[1].Record["message"])

	// The sequence resumes after the offset.
	assert.Equal(t, uint64(4), (entries[0].Time>>8)&0x00ff_ffff)
	assert.Equal(t, 4, readOffset(path+"_r"))
}

func TestRunSingleCountSent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.log")
	writeLines(t, path, "a", "b", "c", "d", "e")

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		CountSent:    2,
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 1,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSingle(context.Background(), path, config.InputLog))
	require.Len(t, rec.entries(t), 2)
}

func TestPackingCeiling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.log")

	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, fmt.Sprintf("%04d %s", i, strings.Repeat("x", 1000)))
	}
	writeLines(t, path, lines...)

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 1,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSingle(context.Background(), path, config.InputLog))

	require.Greater(t, len(rec.batches), 2)
	for i, b := range rec.batches {
		// The pre-append check uses the raw unit length; the safety gap
		// absorbs the per-entry framing overhead.
		assert.Less(t, len(b), producer.MaxBytes, "batch %d exceeds the ceiling", i)
		assert.NotEmpty(t, b)
	}
	assert.Len(t, rec.entries(t), 300)
}

func TestRunSplitProcessesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "batch-b.log"), "from b")
	writeLines(t, filepath.Join(dir, "batch-a.log"), "from a")
	writeLines(t, filepath.Join(dir, "other.log"), "ignored")

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        dir,
		Output:       "none",
		FilePrefix:   "batch-",
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 1,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSplit(context.Background()))

	entries := rec.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("from a"), entries[0].Record["message"])
	assert.Equal(t, []byte("from b"), entries[1].Record["message"])
}

func TestRunSinglePcapSampling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.pcap")

	// 20 bytes per packet: the flow crosses the minimum sample size with
	// the seventh packet and is emitted on that round. The two trailing
	// packets stay below the minimum and are dropped at drain.
	var frames [][]byte
	var concat []byte
	for i := 1; i <= 9; i++ {
		payload := fmt.Appendf(nil, "my message number: %d", i)
		if i <= 7 {
			concat = append(concat, payload...)
		}
		frames = append(frames, tcpFrame(0x0a000001, 0x0a000002, 0x1234, 0x0050, payload))
	}
	writePcap(t, path, frames...)

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		ModeSampling: true,
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 5,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSingle(context.Background(), path, config.InputPcap))

	entries := rec.entries(t)
	require.Len(t, entries, 1)
	rec0 := entries[0].Record
	assert.Equal(t, concat, rec0["message"])
	assert.Equal(t, []byte{0x0a, 0x00, 0x00, 0x01}, rec0["src"])
	assert.Equal(t, []byte{0x0a, 0x00, 0x00, 0x02}, rec0["dst"])
	assert.Equal(t, []byte{0x12, 0x34}, rec0["sport"])
	assert.Equal(t, []byte{0x00, 0x50}, rec0["dport"])
	assert.Equal(t, []byte{0x06}, rec0["proto"])
	assert.Equal(t, uint64(5), entries[0].Time&0xff)
}

func TestRunSinglePcapForwarding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.pcap")
	writePcap(t, path,
		tcpFrame(1, 2, 3, 4, []byte("abc")),
		tcpFrame(1, 2, 3, 4, []byte("123")))

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 1,
		EntropyRatio: 0.9,
	}
	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	require.NoError(t, c.runSingle(context.Background(), path, config.InputPcap))

	entries := rec.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("abc"), entries[0].Record["message"])
	assert.Equal(t, []byte("123"), entries[1].Record["message"])
}

func TestRunSingleGrowCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.log")
	writeLines(t, path, "only line")

	rec := &recordingProducer{}
	cfg := &config.Config{
		Input:        path,
		Output:       "none",
		ModeGrow:     true,
		QueueSize:    900_000,
		QueuePeriod:  3,
		DatasourceID: 1,
		EntropyRatio: 0.9,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := &Controller{cfg: cfg, producer: rec, seqNo: 1}
	start := time.Now()
	require.NoError(t, c.runSingle(ctx, path, config.InputLog))
	assert.Less(t, time.Since(start), growRetryInterval)

	// The partial batch was flushed on shutdown.
	require.Len(t, rec.entries(t), 1)
}

func TestFilesInDir(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "log-1"), "x")
	writeLines(t, filepath.Join(dir, "log-2"), "x")
	writeLines(t, filepath.Join(dir, "skip-me"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "log-sub"), 0o755))

	files, err := filesInDir(dir, "log-", map[string]bool{
		filepath.Join(dir, "log-2"): true,
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "log-1"), files[0])
}
