package api

// IdentityResponse from POST /v1/identity
type IdentityResponse struct {
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

// DatabaseInfo from GET /v1/database/{name}
type DatabaseInfo struct {
	DatabaseIdentity string `json:"database_identity"`
	OwnerIdentity    string `json:"owner_identity"`
	HostType         string `json:"host_type"`
}
