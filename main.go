/*
 * GPGPU - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/GPGPU/command/reader"
	configparser "github.com/rcornwell/GPGPU/config/configparser"
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/gpu"
	"github.com/rcornwell/GPGPU/sim/trace"
	"github.com/rcornwell/GPGPU/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optTrace := getopt.StringLong("trace", 't', "commands.json", "Trace command file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optCycles := getopt.IntLong("cycles", 'n', 0, "Cycle limit, 0 for unlimited")
	optStats := getopt.StringLong("stats", 's', "", "Statistics output file")
	optCSV := getopt.BoolLong("csv", 0, "Write statistics as CSV instead of JSON")
	optMonitor := getopt.BoolLong("monitor", 'm', "Interactive monitor")
	optParallel := getopt.BoolLong("parallel", 'p', "Cycle clusters in parallel")
	optDebug := getopt.BoolLong("debug", 'd', "Debug output")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, *optDebug))
	slog.SetDefault(Logger)

	Logger.Info("GPGPU started")

	cfg := config.Default()
	if *optConfig != "" {
		if err := configparser.LoadConfigFile(*optConfig, cfg); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}
	if *optCycles > 0 {
		cfg.CycleLimit = uint64(*optCycles)
	}

	sim, err := gpu.New(cfg, *optParallel)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	commands, err := trace.LoadCommands(*optTrace)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	traceDir := filepath.Dir(*optTrace)
	for _, cmd := range commands {
		switch {
		case cmd.MemcpyHtoD != nil:
			sim.Memcpy(cmd.MemcpyHtoD)
		case cmd.KernelLaunch != nil:
			kt, err := trace.LoadKernelTrace(traceDir, cmd.KernelLaunch)
			if err != nil {
				Logger.Error(err.Error())
				os.Exit(1)
			}
			if err := sim.Launch(kt); err != nil {
				Logger.Error(err.Error())
				os.Exit(1)
			}
		}
	}

	if *optMonitor {
		reader.ConsoleReader(sim)
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := sim.RunToCompletion(ctx); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}

	for _, k := range sim.Stats().Kernels() {
		Logger.Info(k.Summary())
	}

	if *optStats != "" {
		out, err := os.Create(*optStats)
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
		defer out.Close()
		if *optCSV {
			err = sim.Stats().WriteCSV(out)
		} else {
			err = sim.Stats().WriteJSON(out)
		}
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}
	Logger.Info("GPGPU finished", "cycles", sim.Cycle())
}
