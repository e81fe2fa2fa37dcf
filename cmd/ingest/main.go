/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"juice-ledger-go/internal/common"
	"juice-ledger-go/internal/config"
	"juice-ledger-go/internal/store"
	"juice-ledger-go/internal/webhook"

	"go.uber.org/zap"
)

type ingestStats struct {
	recorded  int
	duplicate int
	ignored   int
	rejected  int
	failed    int
}

func (s *ingestStats) add(outcome webhook.Outcome, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		s.rejected++
	case err != nil:
		s.failed++
	case outcome == webhook.OutcomeRecorded:
		s.recorded++
	case outcome == webhook.OutcomeDuplicate:
		s.duplicate++
	default:
		s.ignored++
	}
}

// readEvents returns one payload per file, or one per line when reading stdin.
func readEvents(paths []string, stdin io.Reader) ([][]byte, error) {
	if len(paths) == 0 {
		var events [][]byte
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			events = append(events, append([]byte(nil), line...))
		}
		return events, scanner.Err()
	}

	events := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", p, err)
		}
		events = append(events, data)
	}
	return events, nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: ingest [event.json ...]   (reads newline-delimited events from stdin when no files are given)")
	}
	flag.Parse()

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	events, err := readEvents(flag.Args(), os.Stdin)
	if err != nil {
		zap.L().Fatal("Failed to read events", zap.Error(err))
	}

	services, err := common.InitializeLocal(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	dispatcher := common.NewPipelines(services.Store, services.Chains, nil, cfg).Dispatcher()

	var stats ingestStats
	for i, payload := range events {
		outcome, err := dispatcher.Dispatch(ctx, payload)
		stats.add(outcome, err)
		if err != nil {
			zap.L().Error("Event not applied", zap.Int("index", i), zap.Error(err))
		}
	}

	zap.L().Info("Ingest finished",
		zap.Int("events", len(events)),
		zap.Int("recorded", stats.recorded),
		zap.Int("duplicate", stats.duplicate),
		zap.Int("ignored", stats.ignored),
		zap.Int("rejected", stats.rejected),
		zap.Int("failed", stats.failed))

	if stats.failed > 0 {
		os.Exit(1)
	}
}
