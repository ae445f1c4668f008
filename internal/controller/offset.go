// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package controller

import (
	"os"
	"strconv"
	"strings"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// readOffset returns the resume offset stored in the side-file, or zero
// when the file is missing or does not hold a non-negative integer.
func readOffset(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || offset < 0 {
		return 0
	}
	cclog.Infof("Offset file exists. Skipping %d entries.", offset)
	return offset
}

// writeOffset stores the offset as decimal text, replacing any previous
// content.
func writeOffset(path string, offset int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(offset)), 0o644)
}
