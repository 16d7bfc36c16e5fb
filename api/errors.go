package api

import "fmt"

var ErrConfigurationNotFound = fmt.Errorf("configuration not found")
var ErrInvalidConfiguration = fmt.Errorf("invalid configuration")
var ErrFailedToSaveConfiguration = fmt.Errorf("failed to save configuration")
var ErrFailedToListConfigurations = fmt.Errorf("failed to list configurations")
var ErrFailedToStartSession = fmt.Errorf("failed to start session")
var ErrFailedToListFiles = fmt.Errorf("failed to list files")
var ErrFailedToImport = fmt.Errorf("failed to import archive")
var ErrFailedToSaveSettings = fmt.Errorf("failed to save settings")
