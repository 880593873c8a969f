package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	WorldPreference string `json:"world_preference,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id,omitempty"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
	Catalog         CatalogRef  `json:"catalog"`
	WorldManifest   []WorldRef  `json:"world_manifest,omitempty"`
}

type WorldRef struct {
	WorldID   string `json:"world_id"`
	PatchSize int    `json:"patch_size,omitempty"`
	BoundaryR int64  `json:"boundary_r,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

type WorldParams struct {
	Seed           int64  `json:"seed"`
	PatchSize      int    `json:"patch_size"`
	Strategy       string `json:"strategy"`
	MCMCIterations int    `json:"mcmc_iterations"`
	BoundaryR      int64  `json:"boundary_r,omitempty"`
	MaxViewPatches int    `json:"max_view_patches"`
	Time           uint64 `json:"time"`
}

// CatalogRef lists the item types; grid cell value v > 0 refers to
// Items[v-1].
type CatalogRef struct {
	Digest string    `json:"digest"`
	Count  int       `json:"count"`
	Items  []ItemRef `json:"items"`
}

type ItemRef struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Color          []float64 `json:"color,omitempty"`
	BlocksMovement bool      `json:"blocks_movement,omitempty"`
}

// VIEW (client -> server) asks for the inclusive patch rectangle
// [min_px, max_px] x [min_py, max_py].
type ViewMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	MinPX           int64  `json:"min_px"`
	MinPY           int64  `json:"min_py"`
	MaxPX           int64  `json:"max_px"`
	MaxPY           int64  `json:"max_py"`
}

// PATCHES (server -> client)
type PatchesMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id,omitempty"`
	WorldID         string     `json:"world_id"`
	Time            uint64     `json:"time"`
	Patches         []PatchRef `json:"patches"`
}

type PatchRef struct {
	PX       int64  `json:"px"`
	PY       int64  `json:"py"`
	Fixed    bool   `json:"fixed"`
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
