package ingest

import (
	"path"

	"remix-sync/internal/core/pbr"
)

// Channel names used by the ingest service's data flows.
const (
	ChannelOutput   = "ingestion_output"
	ChannelCleanup  = "cleanup_files"
	ChannelMetadata = "write_metadata"
)

// Job is the request body for the mass-validator material queue.
type Job struct {
	Executor        int      `json:"executor"`
	Name            string   `json:"name"`
	ContextPlugin   Plugin   `json:"context_plugin"`
	CheckPlugins    []Check  `json:"check_plugins"`
	ResultorPlugins []Plugin `json:"resultor_plugins"`
}

type Plugin struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

type Check struct {
	Name            string    `json:"name"`
	SelectorPlugins []Plugin  `json:"selector_plugins"`
	Data            CheckData `json:"data"`
	StopIfFixFailed bool      `json:"stop_if_fix_failed"`
	ContextPlugin   Plugin    `json:"context_plugin"`
}

type CheckData struct {
	DataFlows []DataFlow `json:"data_flows"`
}

type DataFlow struct {
	Name           string `json:"name"`
	PushInputData  bool   `json:"push_input_data,omitempty"`
	PushOutputData bool   `json:"push_output_data"`
	Channel        string `json:"channel"`
}

type importerData struct {
	ContextName              string      `json:"context_name"`
	InputFiles               [][2]string `json:"input_files"`
	OutputDirectory          string      `json:"output_directory"`
	AllowEmptyInputFilesList bool        `json:"allow_empty_input_files_list"`
	DataFlows                []DataFlow  `json:"data_flows"`
	HideContextUI            bool        `json:"hide_context_ui"`
	CreateContextIfNotExist  bool        `json:"create_context_if_not_exist"`
	ExposeMassUI             bool        `json:"expose_mass_ui"`
	CookMassTemplate         bool        `json:"cook_mass_template"`
}

type resultorData struct {
	Channel       string `json:"channel"`
	CleanupOutput *bool  `json:"cleanup_output,omitempty"`
}

var empty = struct{}{}

// BuildJob describes a single-file ingest: import the file with its
// validation type, convert it to DDS, and publish the converted path on the
// ingestion_output channel. input and outDir must be absolute, slash-separated
// paths.
func BuildJob(typ pbr.Type, validation, input, outDir string) Job {
	noCleanup := false
	return Job{
		Executor: 1,
		Name:     "Ingest_" + string(typ) + "_" + path.Base(input),
		ContextPlugin: Plugin{
			Name: "TextureImporter",
			Data: importerData{
				ContextName:              "ingestcraft_browser",
				InputFiles:               [][2]string{{input, validation}},
				OutputDirectory:          outDir,
				AllowEmptyInputFilesList: true,
				DataFlows: []DataFlow{
					{Name: "InOutData", PushOutputData: true, Channel: ChannelOutput},
					{Name: "InOutData", PushOutputData: true, Channel: ChannelCleanup},
					{Name: "InOutData", PushOutputData: true, Channel: ChannelMetadata},
				},
				HideContextUI:           true,
				CreateContextIfNotExist: true,
				ExposeMassUI:            false,
				CookMassTemplate:        true,
			},
		},
		CheckPlugins: []Check{{
			Name:            "ConvertToDDS",
			SelectorPlugins: []Plugin{{Name: "AllShaders", Data: empty}},
			Data: CheckData{DataFlows: []DataFlow{
				{Name: "InOutData", PushInputData: true, PushOutputData: true, Channel: ChannelOutput},
				{Name: "InOutData", PushInputData: true, PushOutputData: true, Channel: ChannelCleanup},
				{Name: "InOutData", PushOutputData: true, Channel: ChannelMetadata},
			}},
			StopIfFixFailed: true,
			ContextPlugin:   Plugin{Name: "CurrentStage", Data: empty},
		}},
		ResultorPlugins: []Plugin{
			{Name: "FileCleanup", Data: resultorData{Channel: ChannelCleanup, CleanupOutput: &noCleanup}},
			{Name: "FileMetadataWritter", Data: resultorData{Channel: ChannelMetadata}},
		},
	}
}
