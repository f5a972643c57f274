package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// effective is the TOML shape printed by "config show": the file's values
// plus the derived paths that were filled in during resolution.
type effective struct {
	Config
	Resolved resolvedPaths `toml:"resolved"`
}

type resolvedPaths struct {
	ConfigFile     string `toml:"config_file"`
	DataDir        string `toml:"data_dir"`
	LogFile        string `toml:"log_file"`
	CheckpointDB   string `toml:"checkpoint_db"`
	ChunkSizeBytes int64  `toml:"chunk_size_bytes"`
	BandwidthBps   int64  `toml:"bandwidth_limit_bytes_per_sec"`
}

// RenderEffective writes the resolved configuration to w as TOML.
func RenderEffective(r *Resolved, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Effective configuration (%s)\n\n", r.Path); err != nil {
		return err
	}

	e := effective{
		Config: r.Config,
		Resolved: resolvedPaths{
			ConfigFile:     r.Path,
			DataDir:        r.DataDir,
			LogFile:        r.LogFile,
			CheckpointDB:   CheckpointPath(r.DataDir),
			ChunkSizeBytes: r.ChunkSize,
			BandwidthBps:   r.BandwidthLimit,
		},
	}

	return toml.NewEncoder(w).Encode(e)
}
