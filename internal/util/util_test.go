// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ClusterCockpit/reproduce/internal/util"
)

func TestCheckFileExists(t *testing.T) {
	tmpdir := t.TempDir()
	if !util.CheckFileExists(tmpdir) {
		t.Fatal("expected true, got false")
	}

	filePath := filepath.Join(tmpdir, "offset.txt")

	if err := os.WriteFile(filePath, []byte("42"), 0o666); err != nil {
		t.Fatal(err)
	}
	if !util.CheckFileExists(filePath) {
		t.Fatal("expected true, got false")
	}

	filePath = filepath.Join(tmpdir, "missing.txt")
	if util.CheckFileExists(filePath) {
		t.Fatal("expected false, got true")
	}
}

func TestIsDirectory(t *testing.T) {
	tmpdir := t.TempDir()
	if !util.IsDirectory(tmpdir) {
		t.Fatal("expected true, got false")
	}

	filePath := filepath.Join(tmpdir, "data.log")
	if err := os.WriteFile(filePath, []byte("x"), 0o666); err != nil {
		t.Fatal(err)
	}
	if util.IsDirectory(filePath) {
		t.Fatal("expected false, got true")
	}
	if !util.IsRegularFile(filePath) {
		t.Fatal("expected true, got false")
	}
	if util.IsRegularFile(tmpdir) {
		t.Fatal("expected false, got true")
	}
}

func TestGetFilesize(t *testing.T) {
	tmpdir := t.TempDir()
	filePath := filepath.Join(tmpdir, "data.log")

	if s := util.GetFilesize(filePath); s > 0 {
		t.Fatalf("expected 0, got %d", s)
	}

	if err := os.WriteFile(filePath, []byte("payload"), 0o666); err != nil {
		t.Fatal(err)
	}
	if s := util.GetFilesize(filePath); s != 7 {
		t.Fatalf("expected 7, got %d", s)
	}
}
