/*
 * Minio Cloud Storage, (C) 2015, 2016, 2017, 2018 Minio, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger carries the sync engine's two output channels: a
// structured, machine-parseable log stream (the "tags" named in the
// engine's external interfaces) and a human-readable error stream for
// interactive use.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// global colors.
var (
	colorBold   = color.New(color.Bold).SprintFunc()
	colorYellow = color.New(color.FgYellow).SprintfFunc()
	colorRed    = color.New(color.FgRed).SprintfFunc()
)

// Level type
type Level int8

// Enumerated level types
const (
	Error Level = iota + 1
	Fatal
)

func (level Level) String() string {
	switch level {
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return ""
	}
}

type tagEntry struct {
	Level string `json:"level"`
	Time  string `json:"time"`
	Tag   string `json:"tag"`
	Data  string `json:"data,omitempty"`
}

// quiet: Hide startup messages if enabled
// jsonFlag: Display in JSON format, if enabled
var quiet, jsonFlag bool

// EnableQuiet - turns quiet option on.
func EnableQuiet() {
	quiet = true
}

// EnableJSON - outputs logs in json format.
func EnableJSON() {
	jsonFlag = true
	quiet = true
}

// Println - wrapper with the quiet flag applied.
func Println(args ...interface{}) {
	if !quiet {
		fmt.Println(args...)
	}
}

// Printf - wrapper with the quiet flag applied.
func Printf(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format, args...)
	}
}

func emitTag(level Level, tag, data string) {
	if jsonFlag {
		entry := tagEntry{
			Level: level.String(),
			Time:  time.Now().UTC().Format(time.RFC3339Nano),
			Tag:   tag,
			Data:  data,
		}
		out, err := json.Marshal(&entry)
		if err != nil {
			panic("json marshal of tagEntry failed: " + err.Error())
		}
		fmt.Println(string(out))
		return
	}
	if data != "" {
		fmt.Printf("%s: %s\n", tag, data)
	} else {
		fmt.Println(tag)
	}
}

// BlockError reports a per-block error of one of the two tolerable
// kinds (external modification or silent data corruption) at index i
// on the named disk.
func BlockError(index int64, disk, sub, reason string) {
	emitTag(Error, fmt.Sprintf("error:%d:%s:%s", index, disk, sub), reason)
}

// ParityWriteError reports a fatal write failure against one parity
// level at index i.
func ParityWriteError(index int64, level int) {
	emitTag(Error, fmt.Sprintf("parity_error:%d:%d", index, level), "Write error")
}

// SummaryCounts emits the end-of-run error tallies.
func SummaryCounts(errors, silentErrors int64) {
	emitTag(Error, "summary:error_readwrite", fmt.Sprintf("%d", errors))
	emitTag(Error, "summary:error_data", fmt.Sprintf("%d", silentErrors))
}

// SummaryExit emits the final ok/error verdict for the run.
func SummaryExit(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	emitTag(Error, "summary:exit", status)
}

// SummaryBytes prints a human-readable line with the total bytes read
// and blocks processed during the run. Purely informational; it has no
// machine-readable tag of its own.
func SummaryBytes(bytesRead int64, blocksProcessed int64) {
	Printf("%s read across %s\n", colorBold(humanize.Bytes(uint64(bytesRead))), pluralizeBlocks(blocksProcessed))
}

func pluralizeBlocks(n int64) string {
	if n == 1 {
		return "1 block"
	}
	return fmt.Sprintf("%d blocks", n)
}

// Warnf prints a yellow, human-readable warning to the error stream.
func Warnf(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintln(os.Stderr, colorYellow(format, args...))
	}
}

// FatalIf prints msg and err, then exits the process. Reserved for
// setup-time failures outside a run (bad CLI arguments, unreadable
// configuration); the sync driver itself never calls this; it returns
// errors to its caller instead.
func FatalIf(err error, msg string, data ...interface{}) {
	if err == nil {
		return
	}
	message := fmt.Sprintf(msg, data...)
	fmt.Println(colorRed("%s", colorBold(fmt.Sprintf("%s: %s", message, err.Error()))))
	os.Exit(1)
}
