// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package matcher loads a pattern file of regular expressions and answers
// whether any of them matches a byte slice.
package matcher

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Matcher is a compiled set of regular expressions.
type Matcher struct {
	exps []*regexp.Regexp
}

// FromFile reads a pattern file: one expression per line, blank lines and
// '#' comment lines ignored, 'id:/regex/flags' shorthand stripped to the
// inner expression body.
func FromFile(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromReader(f)
}

// FromReader compiles the patterns read from r.
func FromReader(r io.Reader) (*Matcher, error) {
	var exps []*regexp.Regexp
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rule := trimToRule(scanner.Text())
		if rule == "" {
			continue
		}
		re, err := regexp.Compile(rule)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", rule, err)
		}
		exps = append(exps, re)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &Matcher{exps: exps}, nil
}

// Scan reports whether any pattern matches data.
func (m *Matcher) Scan(data []byte) bool {
	for _, re := range m.exps {
		if re.Match(data) {
			return true
		}
	}
	return false
}

// trimToRule extracts the expression body from a pattern line. An empty
// result means the line carries no rule.
func trimToRule(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	expr := line
	if off := strings.Index(line, ":/"); off >= 0 {
		expr = line[off+1:]
	}
	if strings.HasPrefix(expr, "/") {
		if end := strings.LastIndex(expr, "/"); end > 0 {
			expr = expr[1:end]
		}
	}
	return expr
}
