/*
Copyright 2022 GramLabs, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commander

import (
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/internal/pipeline"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingGlobals adds the persistent debug flag to the root of the supplied command
func LoggingGlobals(debug *bool, cmd *cobra.Command) {
	cmd.Root().PersistentFlags().BoolVar(debug, "debug", false, "enable verbose development logging")
}

// NewLogger returns a logger writing to the supplied stream, debug enables development mode and V(1) messages
func NewLogger(w io.Writer, debug bool) logr.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	opts := []zap.Option{zap.ErrorOutput(zapcore.AddSync(w))}
	if debug {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
		opts = append(opts, zap.Development(), zap.AddCaller())
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zapr.NewLogger(zap.New(core, opts...))
}

// Progress reports pipeline phases as colored lines on a terminal stream.
type Progress struct {
	out     io.Writer
	profile termenv.Profile
}

var _ pipeline.Observer = &Progress{}

// NewProgress returns a progress reporter for the supplied stream; color is only used on a terminal.
func NewProgress(w io.Writer) *Progress {
	p := &Progress{out: w, profile: termenv.Ascii}
	if f, ok := w.(interface{ Fd() uintptr }); ok && isatty.IsTerminal(f.Fd()) {
		p.profile = termenv.ColorProfile()
	}
	return p
}

// PhaseStarted prints the name of the phase about to run
func (p *Progress) PhaseStarted(state pipeline.State) {
	_, _ = fmt.Fprintf(p.out, "%s %s...\n", p.style("241", "==>"), state.Phase())
}

// PhaseCompleted prints the state reached and the time it took
func (p *Progress) PhaseCompleted(state pipeline.State, elapsed time.Duration) {
	_, _ = fmt.Fprintf(p.out, "%s %s %s (%s, %s)\n", p.style("241", "==>"), state.Phase(), p.style("2", "done"), state, elapsed.Round(time.Millisecond))
}

func (p *Progress) style(color, s string) string {
	return termenv.Style{}.Foreground(p.profile.Color(color)).Styled(s)
}
