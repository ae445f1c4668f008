// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package producer

import (
	"bufio"
	"fmt"
	"os"
)

type fileProducer struct {
	f *os.File
	w *bufio.Writer
}

// NewFile returns a producer appending newline-delimited batches to path.
func NewFile(path string) (Producer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	return &fileProducer{f: f, w: bufio.NewWriter(f)}, nil
}

func (p *fileProducer) Produce(msg []byte, flush bool) error {
	if _, err := p.w.Write(msg); err != nil {
		return err
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return err
	}
	if flush {
		return p.w.Flush()
	}
	return nil
}

func (p *fileProducer) Close() error {
	if err := p.w.Flush(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}

type nullProducer struct{}

// NewNull returns a producer that discards everything.
func NewNull() Producer {
	return nullProducer{}
}

func (nullProducer) Produce([]byte, bool) error { return nil }
func (nullProducer) Close() error               { return nil }
