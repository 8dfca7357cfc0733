package models

// Organization is one entry of the portal's org enumeration.
// Path is the provider's slash-delimited hierarchical id.
type Organization struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// OrgDetail is the expanded organization record with its member users
type OrgDetail struct {
	Path  string    `json:"path"`
	Name  string    `json:"name"`
	Users []OrgUser `json:"users"`
}

// OrgUser is a user as embedded in an organization detail response
type OrgUser struct {
	ID        string `json:"id"`
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	RoleID    string `json:"roleId"`
}

// ChargingStation is one station of the active organization. All fields are
// read-only mirrors of provider data; the writable control points (current,
// chargingStart, chargingStop, chargingUserId) exist only in the node store.
type ChargingStation struct {
	ID                         string   `json:"id"`
	Name                       string   `json:"name"`
	SerialNumber               string   `json:"serialNumber"`
	Model                      string   `json:"model"`
	MacAddress                 string   `json:"macAddress"`
	FirmwareVersion            string   `json:"firmwareVersion"`
	Latitude                   *float64 `json:"latitude"`
	Longitude                  *float64 `json:"longitude"`
	MainboardBootloaderVersion string   `json:"mainboardBootloaderVersion"`
	MainboardFirmwareVersion   string   `json:"mainboardFirmwareVersion"`
	MainboardHardwareRevision  string   `json:"mainboardHardwareRevision"`
	LatestOperationMode        string   `json:"latestOperationMode"`
	PublicKey                  string   `json:"publicKey"`
	Connectivity               string   `json:"connectivity"`
	CreationDate               string   `json:"creationDate"`
	ModificationDate           string   `json:"modificationDate"`
}

// StationPage is the paginated station list envelope
type StationPage struct {
	Data []ChargingStation `json:"data"`
}

// SessionUser is the user optionally embedded in a charging session
type SessionUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ChargingSession is one historical charging session record
type ChargingSession struct {
	ID                  string       `json:"id"`
	ChargingSessionID   int64        `json:"chargingSessionId"`
	ChargingStationID   string       `json:"chargingStationId"`
	ChargingStationName string       `json:"chargingStationName"`
	ChargingStatus      string       `json:"chargingStatus"`
	Location            string       `json:"location"`
	OrganizationPath    string       `json:"organizationPath"`
	CreationDate        string       `json:"creationDate"`
	SessionStarted      string       `json:"sessionStarted"`
	SessionCompleted    string       `json:"sessionCompleted"`
	SessionDuration     *float64     `json:"sessionDuration"`
	SessionEnergyAmount *float64     `json:"sessionEnergyAmount"`
	User                *SessionUser `json:"user"`
}

// SessionPage is the paginated charging-session list envelope
type SessionPage struct {
	Data []*ChargingSession `json:"data"`
}

// UserInfo is the portal's current-user profile. The provider reports only
// whether tokens exist; raw token values never appear anywhere.
type UserInfo struct {
	Sub          string   `json:"sub"`
	Email        string   `json:"email"`
	GivenName    string   `json:"given_name"`
	FamilyName   string   `json:"family_name"`
	ActiveOrg    string   `json:"activeOrg"`
	AccessToken  bool     `json:"access_token"`
	RefreshToken bool     `json:"refresh_token"`
	ExpiresAt    string   `json:"expires_at"`
	Locale       string   `json:"locale"`
	Permissions  []string `json:"permissions"`
}
