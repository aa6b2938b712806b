// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"log/slog"
	"time"
)

// CallLogger logs blocking calls into the tracking backend: the call name
// when it starts and its outcome and duration when it returns.
type CallLogger struct {
	logger *slog.Logger
	level  slog.Level
}

// NewCallLogger creates a call logger that reports successful calls at
// level. Failed calls are always reported at error level.
func NewCallLogger(logger *slog.Logger, level slog.Level) *CallLogger {
	return &CallLogger{logger: logger, level: level}
}

// Do runs fn and logs it as the backend call op.
func (c *CallLogger) Do(ctx context.Context, op string, fn func() error, attrs ...slog.Attr) error {
	start := time.Now()

	c.logger.LogAttrs(ctx, c.level-4, "backend call started", append([]slog.Attr{slog.String("op", op)}, attrs...)...)

	err := fn()

	done := append([]slog.Attr{
		slog.String("op", op),
		slog.Bool("success", err == nil),
		slog.Int64(DurationKey, time.Since(start).Milliseconds()),
	}, attrs...)

	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelError, "backend call failed", append(done, Error(err))...)
		return err
	}

	c.logger.LogAttrs(ctx, c.level, "backend call completed", done...)
	return nil
}
