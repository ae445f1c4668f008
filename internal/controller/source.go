// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package controller

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/ClusterCockpit/reproduce/internal/config"
	"github.com/ClusterCockpit/reproduce/internal/util"
)

// source yields one input unit per call: a log line without its line
// terminator, or the raw bytes of one captured frame. Next returns io.EOF
// when the source is exhausted; for growing inputs a later call may yield
// data again.
type source interface {
	Next() ([]byte, error)
	Close() error
}

// probeInput classifies the input path. Non-existent paths are assumed to
// name a capture device; opening validates them.
func probeInput(input string) (config.InputType, error) {
	if util.IsDirectory(input) {
		return config.InputDir, nil
	}
	if !util.IsRegularFile(input) {
		return config.InputNic, nil
	}

	f, err := os.Open(input)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", input, err)
	}
	defer f.Close()

	if _, err := pcapgo.NewReader(f); err == nil {
		return config.InputPcap, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions); err == nil {
		return config.InputPcapNg, nil
	}
	return config.InputLog, nil
}

// logSource yields newline-separated binary strings. The final line is
// yielded even without a terminator.
type logSource struct {
	f *os.File
	r *bufio.Reader
}

func openLogSource(path string) (*logSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &logSource{f: f, r: bufio.NewReader(f)}, nil
}

func (s *logSource) Next() ([]byte, error) {
	line, err := s.r.ReadBytes('\n')
	if len(line) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	if line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
	}
	return line, nil
}

func (s *logSource) Close() error {
	return s.f.Close()
}

// packetSource yields raw frames from any gopacket data source: an
// offline pcap/pcapng reader or a live capture handle.
type packetSource struct {
	src    gopacket.PacketDataSource
	closer io.Closer
}

func (s *packetSource) Next() ([]byte, error) {
	data, _, err := s.src.ReadPacketData()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *packetSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

type handleCloser struct {
	h *pcap.Handle
}

func (c handleCloser) Close() error {
	c.h.Close()
	return nil
}
