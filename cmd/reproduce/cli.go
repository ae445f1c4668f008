// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagEval, flagGrow, flagPollDir, flagLogDateTime                    bool
	flagBroker, flagInput, flagOutput, flagOffsetPrefix, flagTopic      string
	flagPacketFilter, flagBrokerConfig, flagPatternFile, flagFilePrefix string
	flagLogLevel                                                        string
	flagCount, flagSkip, flagQueueSize                                  int
	flagQueuePeriod                                                     int64
	flagDatasourceID                                                    uint
	flagInitialSeqNo                                                    uint64
	flagEntropyRatio                                                    float64
)

func cliInit() {
	flag.StringVar(&flagBroker, "b", "", "Broker list (host1:port1,host2:port2,.. or nats://host:port)")
	flag.IntVar(&flagCount, "c", 0, "Send count; 0 sends unbounded")
	flag.UintVar(&flagDatasourceID, "d", 1, "Data source ID (1-255)")
	flag.Float64Var(&flagEntropyRatio, "E", 0.9, "Entropy ratio. Flow payloads exceeding it are discarded as near-random; passing this flag enables flow sampling")
	flag.BoolVar(&flagEval, "e", false, "Evaluation mode. Outputs statistics of transmission")
	flag.StringVar(&flagPacketFilter, "f", "", "Packet filter expression for live capture")
	flag.BoolVar(&flagGrow, "g", false, "Continues to read from a growing input file")
	flag.StringVar(&flagInput, "i", "", "Input [PCAPFILE/LOGFILE/DIR/DEVICE]")
	flag.Uint64Var(&flagInitialSeqNo, "j", 0, "Sets the initial sequence number (0-16777215)")
	flag.StringVar(&flagBrokerConfig, "k", "", "Broker config override file")
	flag.StringVar(&flagPatternFile, "m", "", "Pattern file name")
	flag.StringVar(&flagFilePrefix, "n", "", "Prefix of file names to send multiple files or a directory")
	flag.StringVar(&flagOutput, "o", "", "Output type [TEXTFILE/none]. If not given, the output is sent to the broker")
	flag.Int64Var(&flagQueuePeriod, "p", 3, "Specifies how long data may be kept in the queue, in seconds")
	flag.IntVar(&flagQueueSize, "q", 900_000, "Specifies the maximum number of bytes sent to the broker in a single message")
	flag.StringVar(&flagOffsetPrefix, "r", "", "Record (prefix of offset file). Resumes the conversion after the previous one. The offset file name is <input_file>_<prefix>")
	flag.IntVar(&flagSkip, "s", 0, "Skip count")
	flag.StringVar(&flagTopic, "t", "", "Broker topic name. The topic should be available on the broker")
	flag.BoolVar(&flagPollDir, "v", false, "Polls the input directory")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Parse()
}
