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

// Package version contains the command for displaying version information.
package version

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/version"
	"sigs.k8s.io/yaml"
)

const defaultTemplate = `{{ .Product }} version: {{ .Version }}
{{- with .GitCommit }} ({{ trunc 7 . }}){{ end }}
database format: {{ .DatabaseFormat }}
`

// Options is the configuration for reporting the version
type Options struct {
	// IOStreams are used to access the standard process streams
	commander.IOStreams

	// Output is the format to output data in
	Output string
	// Template overrides the text rendering of the version information
	Template string
}

// Info is the printable version information
type Info struct {
	Product        string `json:"product"`
	Version        string `json:"version"`
	GitCommit      string `json:"gitCommit,omitempty"`
	DatabaseFormat string `json:"databaseFormat"`
}

// NewCommand creates a new command for displaying the version
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version of the tuner and of the tuning database format it writes",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithoutArgsE(o.version),
	}

	cmd.Flags().StringVarP(&o.Output, "output", "o", "", "output `format`; one of: json|yaml")
	cmd.Flags().StringVar(&o.Template, "template", "", "Go `template` used to render the version information")

	return cmd
}

func (o *Options) version() error {
	v := version.GetInfo()
	info := &Info{
		Product:        version.DefaultProduct,
		Version:        v.String(),
		GitCommit:      v.GitCommit,
		DatabaseFormat: database.FormatVersion,
	}

	switch strings.ToLower(o.Output) {
	case "json":
		output, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(o.Out, string(output))
		return err
	case "yaml":
		output, err := yaml.Marshal(info)
		if err != nil {
			return err
		}
		_, err = o.Out.Write(output)
		return err
	case "":
	default:
		return fmt.Errorf("unsupported output format: %s", o.Output)
	}

	text := o.Template
	if text == "" {
		text = defaultTemplate
	}
	tmpl, err := template.New("version").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return err
	}
	return tmpl.Execute(o.Out, info)
}
