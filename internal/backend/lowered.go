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

package backend

// loweredTemplate renders a scheduled matrix-vector function. Row-dot schedules reduce each
// row over the reduction tiles, column-axpy schedules accumulate scaled columns into a row tile.
const loweredTemplate = `
{{- define "buffer" }}{{ .Name }}: Buffer[{{ shape .Shape }}, {{ .DType | quote }}]{{ end }}

{{- define "rowExtent" }}{{ if .RowTail }}min({{ .TileM }}, {{ .M }} - i0.outer*{{ .TileM }}){{ else }}{{ .TileM }}{{ end }}{{ end }}

{{- define "kExtent" }}{{ if .KTail }}min({{ .TileK }}, {{ .K }} - k.outer*{{ .TileK }}){{ else }}{{ .TileK }}{{ end }}{{ end }}

{{- define "update" }}
{{- $d := .d -}}
{{- $data := index $d.Params 0 -}}
{{- $weight := index $d.Params 1 -}}
{{ .pad }}{{ $d.Output.Name }}[{{ .row }}, 0] = {{ $d.Output.Name }}[{{ .row }}, 0] + {{ $data.Name }}[{{ if $d.Transposed }}{{ .k }}, {{ .row }}{{ else }}{{ .row }}, {{ .k }}{{ end }}]*{{ $weight.Name }}[{{ .k }}, 0]
{{- end }}

{{- define "rows" }}
{{- $d := .d -}}
{{ .pad }}for (i0.inner, 0, {{ template "rowExtent" $d }}) {
{{- if $d.CSE }}
{{ .pad }}  let cse_var_1 = i0.outer*{{ $d.TileM }} + i0.inner
{{- end }}
{{ template "update" (dict "d" $d "row" .row "k" .k "pad" (printf "%s  " .pad)) }}
{{ .pad }}}
{{- end }}

{{- define "body" }}
{{- if .axpy }}{{ template "rows" . }}{{ else }}{{ template "update" . }}{{ end }}
{{- end }}

{{- define "inner" }}
{{- $d := .d -}}
{{- if $d.ExpandUnroll }}
{{ .pad }}for (k.inner, 0, {{ div $d.TileK $d.Unroll }}) {
{{- range $j := until $d.Unroll }}
{{ template "body" (dict "d" $d "axpy" $.axpy "row" $.row "k" (printf "%s + k.inner*%d + %d" $.kbase $d.Unroll $j) "pad" (printf "%s  " $.pad)) }}
{{- end }}
{{ .pad }}}
{{- else }}
{{- if gt $d.Unroll 1 }}
{{ .pad }}// pragma unroll({{ $d.Unroll }})
{{- end }}
{{ .pad }}for (k.inner, 0, {{ template "kExtent" $d }}) {
{{ template "body" (dict "d" $d "axpy" $.axpy "row" $.row "k" (printf "%s + k.inner" $.kbase) "pad" (printf "%s  " $.pad)) }}
{{ .pad }}}
{{- end }}
{{- end -}}

{{- $row := ternary "cse_var_1" (printf "(i0.outer*%d + i0.inner)" .TileM) .CSE -}}
{{- $kbase := ternary "cse_var_2" (printf "k.outer*%d" .TileK) .CSE -}}
@{{ .Function }}({{ range $i, $p := .Params }}{{ if $i }}, {{ end }}{{ template "buffer" $p }}{{ end }}, {{ template "buffer" .Output }}) {
  // candidate: {{ .Candidate }} ({{ .Source }})
  {{ if gt .Threads 1 }}parallel(num_threads={{ .Threads }}) {{ end }}for (i0.outer, 0, {{ ceilDiv .M .TileM }}) {
{{- if eq .Order 0 }}
    for (i0.inner, 0, {{ template "rowExtent" . }}) {
{{- if .CSE }}
      let cse_var_1 = i0.outer*{{ .TileM }} + i0.inner
{{- end }}
      {{ .Output.Name }}[{{ $row }}, 0] = 0f
      for (k.outer, 0, {{ ceilDiv .K .TileK }}) {
{{- if .CSE }}
        let cse_var_2 = k.outer*{{ .TileK }}
{{- end }}
{{- template "inner" (dict "d" . "axpy" false "row" $row "kbase" $kbase "pad" "        ") }}
      }
    }
{{- else }}
    for (i0.inner, 0, {{ template "rowExtent" . }}) {
      {{ .Output.Name }}[(i0.outer*{{ .TileM }} + i0.inner), 0] = 0f
    }
    for (k.outer, 0, {{ ceilDiv .K .TileK }}) {
{{- if .CSE }}
      let cse_var_2 = k.outer*{{ .TileK }}
{{- end }}
{{- template "inner" (dict "d" . "axpy" true "row" $row "kbase" $kbase "pad" "      ") }}
    }
{{- end }}
  }
}
`
