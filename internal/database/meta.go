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

package database

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
)

const metaFilename = "database_meta.json"

// meta is the database metadata stored alongside the records.
type meta struct {
	FormatVersion string `json:"formatVersion"`
	Kind          string `json:"kind"`
	Target        string `json:"target"`
}

func readMeta(dir string) (meta, error) {
	m := meta{}
	b, err := ioutil.ReadFile(filepath.Join(dir, metaFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func writeMeta(dir string, m *meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so a crash never leaves a truncated file behind
	tmp := filepath.Join(dir, metaFilename+".tmp")
	if err := ioutil.WriteFile(tmp, append(b, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, metaFilename))
}
