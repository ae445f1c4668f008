// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"errors"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

func IsDirectory(filePath string) bool {
	fileInfo, err := os.Stat(filePath)
	return err == nil && fileInfo.IsDir()
}

func IsRegularFile(filePath string) bool {
	fileInfo, err := os.Stat(filePath)
	return err == nil && fileInfo.Mode().IsRegular()
}

func GetFilesize(filePath string) int64 {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		cclog.Errorf("Error on Stat %s: %v", filePath, err)
		return 0
	}
	return fileInfo.Size()
}
