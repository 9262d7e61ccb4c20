/*
Copyright 2020 GramLabs, Inc.

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

package config

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	yaml2 "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

const (
	// https://specifications.freedesktop.org/basedir-spec/basedir-spec-latest.html

	homeEnv              = "HOME"
	xdgConfigHomeEnv     = "XDG_CONFIG_HOME"
	xdgConfigHomeDefault = ".config"
	xdgConfigDirsEnv     = "XDG_CONFIG_DIRS"
	xdgConfigDirsDefault = "/etc/xdg"
	configFilename       = "optimize-tuner/config"
)

// fileLoader loads a configuration from the currently configured filename
func fileLoader(cfg *TunerConfig) error {
	f := &file{}

	// Writes go to the user file even when a system file was read
	filename := cfg.Filename
	if filename == "" {
		filename, cfg.Filename = configFilenames()
	}

	if err := f.read(filename); err != nil {
		return fmt.Errorf("unable to read configuration %s: %w", filename, err)
	}

	cfg.Merge(&f.data)
	return nil
}

// file represents the data of a configuration file
type file struct {
	data Config
}

// read will decode YAML or JSON data from the specified file, a missing file is empty
func (f *file) read(filename string) error {
	r, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer r.Close()

	return yaml2.NewYAMLOrJSONDecoder(bufio.NewReader(r), 4096).Decode(&f.data)
}

// write will encode YAML data from this configuration into the specified file name
func (f *file) write(filename string) error {
	output, err := yaml.Marshal(f.data)
	if err != nil {
		return err
	}

	// The file may contain an API key
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return err
	}
	return ioutil.WriteFile(filename, output, 0600)
}

// configFilenames returns both the file to read and the file changes should be written to
func configFilenames() (string, string) {
	xdgConfigHome := os.Getenv(xdgConfigHomeEnv)
	if xdgConfigHome == "" {
		xdgConfigHome = filepath.Join(os.Getenv(homeEnv), xdgConfigHomeDefault)
	}

	xdgConfigDirs := os.Getenv(xdgConfigDirsEnv)
	if xdgConfigDirs == "" {
		xdgConfigDirs = xdgConfigDirsDefault
	}

	userConfigFilename := filepath.Join(xdgConfigHome, configFilename)
	for _, dir := range append([]string{xdgConfigHome}, filepath.SplitList(xdgConfigDirs)...) {
		filename := filepath.Join(dir, configFilename)
		if _, err := os.Stat(filename); err == nil {
			return filename, userConfigFilename
		}
	}
	return userConfigFilename, userConfigFilename
}
