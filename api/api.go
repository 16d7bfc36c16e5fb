package api

import (
	"encoding/json"

	"github.com/lcpu-club/optdeadline/common"
	"github.com/lcpu-club/optdeadline/importer"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
)

type ListConfigurationsResponse struct {
	common.ResponseBase
	Configurations []string `json:"configurations"`
}

type GetConfigurationResponse struct {
	common.ResponseBase
	Configuration *store.Configuration `json:"configuration"`
}

type SaveConfigurationRequest struct {
	store.Configuration
}

type SaveConfigurationResponse struct {
	common.ResponseBase
}

type RunRequest struct {
	ConfigurationName string             `json:"configuration_name"`
	Algorithms        session.Algorithms `json:"algorithms"`
	Deadline          json.Number        `json:"deadline"`
}

type RunResponse struct {
	common.ResponseBase
	SessionID string `json:"session-id"`
}

type ListSessionsResponse struct {
	common.ResponseBase
	Sessions []*status.Snapshot `json:"sessions"`
}

type GetSessionResponse struct {
	common.ResponseBase
	Session *status.Snapshot `json:"session"`
}

type ListFilesResponse struct {
	common.ResponseBase
	Files map[string][]string `json:"files"`
}

type ImportResponse struct {
	common.ResponseBase
	Bundles []importer.Bundle `json:"bundles"`
}

type SettingsResponse struct {
	common.ResponseBase
	Settings map[string]string `json:"settings"`
}

type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings"`
}

type UpdateSettingsResponse struct {
	SettingsResponse
}
