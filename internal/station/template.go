package station

import (
	"encoding/json"
	"fmt"
	"os"
)

// Template is the on-disk description of one simulated station:
// identity fields, connectors, configuration keys, electrical profile,
// supervision URLs, ATG settings, and per-connector meter-values templates.
type Template struct {
	StationId               string `json:"stationId"`
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`

	SupervisionUrls                 []string `json:"supervisionUrls"`
	SupervisionUrlOcppConfiguration bool     `json:"supervisionUrlOcppConfiguration"`
	DistributionPolicy              string   `json:"distributionPolicy"` // round-robin | random | sequential

	AuthorizationKey string `json:"authorizationKey,omitempty"` // HTTP Basic password; username is stationId


	NumberOfConnectors int                          `json:"numberOfConnectors"`
	RandomConnectors   *bool                        `json:"randomConnectors,omitempty"`
	Connectors         map[string]TemplateConnector `json:"connectors"`

	MaxPower                float64 `json:"maxPower"`
	Voltage                 float64 `json:"voltage"`
	NumberOfPhases          int     `json:"numberOfPhases"`
	CosPhi                  float64 `json:"cosPhi"`
	AmperageLimitation      float64 `json:"amperageLimitation"`
	PowerSharedByConnectors bool    `json:"powerSharedByConnectors"`
	IsDC                    bool    `json:"isDC"`

	Configuration             map[string]string `json:"configuration"`
	AuthorizeRemoteTxRequests bool              `json:"authorizeRemoteTxRequests"`
	LocalAuthListEnabled      bool              `json:"localAuthListEnabled"`
	SupportedFeatureProfiles  []string          `json:"supportedFeatureProfiles"`
	ConnectionTimeOutSeconds  int               `json:"connectionTimeOutSeconds"`

	AutoRegister         bool `json:"autoRegister"`
	OcppStrictCompliance bool `json:"ocppStrictCompliance"`
	SkipBufferingOnError bool `json:"skipBufferingOnError"`

	ATG *ATGTemplate `json:"atg,omitempty"`

	AuthorizationListFile string `json:"authorizationListFile,omitempty"`
}

// TemplateConnector is one entry of a Template's Connectors map, keyed by
// connector id as a string ("0" is the station itself).
type TemplateConnector struct {
	NumberOfPhases           int                `json:"numberOfPhases"`
	MeterValuesSampledData   []string           `json:"meterValuesSampledData"`
	MeterValueSampleInterval int                `json:"meterValueSampleIntervalSeconds"`
	FluctuationPercent       map[string]float64 `json:"fluctuationPercent,omitempty"`
	FixedValue               map[string]float64 `json:"fixedValue,omitempty"`
	MinValue                 map[string]float64 `json:"minValue,omitempty"`
}

// ATGTemplate configures the Automatic Transaction Generator for a station,
// overriding internal/config fleet-wide defaults.
type ATGTemplate struct {
	Enabled             bool     `json:"enabled"`
	MinDelaySeconds     int      `json:"minDelaySeconds"`
	MaxDelaySeconds     int      `json:"maxDelaySeconds"`
	MinDurationSeconds  int      `json:"minDurationSeconds"`
	MaxDurationSeconds  int      `json:"maxDurationSeconds"`
	StartProbability    float64  `json:"startProbability"`
	StopAfterHours      float64  `json:"stopAfterHours"`
	RequireAuthorize    bool     `json:"requireAuthorize"`
	AuthorizedIdTags    []string `json:"authorizedIdTags"`
}

// LoadTemplate reads and parses a station template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if t.CosPhi == 0 {
		t.CosPhi = 1
	}
	return &t, nil
}

// LoadAuthorizationList reads a JSON array of id-tag strings.
func LoadAuthorizationList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read authorization list %s: %w", path, err)
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("parse authorization list %s: %w", path, err)
	}
	return tags, nil
}
