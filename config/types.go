package config

// Storage selects the key-value backend holding ledger state.
type Storage struct {
	// Backend is one of leveldb, bolt or memory.
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Logging controls the structured logger.
type Logging struct {
	Level string `toml:"Level"`
	// File, when set, receives logs through a rotating writer.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Telemetry configures OTLP export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Pauses lists modules halted at startup.
type Pauses struct {
	Comptroller bool `toml:"Comptroller"`
}

// Modules returns the names of the paused modules.
func (p Pauses) Modules() []string {
	var out []string
	if p.Comptroller {
		out = append(out, "comptroller")
	}
	return out
}
