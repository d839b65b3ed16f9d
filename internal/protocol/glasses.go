// SPDX-License-Identifier: MIT

package protocol

// Glasses → cloud message types.
const (
	GlassesConnectionInit = "connection_init"
	GlassesVAD            = "VAD"
	GlassesButtonPress    = "button_press"
	GlassesHeadPosition   = "head_position"
	GlassesBatteryUpdate  = "glasses_battery_update"
	GlassesLocationUpdate = "location_update"
	GlassesCalendarEvent  = "calendar_event"
	GlassesCoreStatus     = "core_status"
	GlassesStartApp       = "start_app"
	GlassesStopApp        = "stop_app"
)

// Cloud → glasses message types.
const (
	GlassesConnectionAck   = "connection_ack"
	GlassesAppStateChange  = "app_state_change"
	GlassesDisplayEvent    = "display_event"
	GlassesMicStateChange  = "microphone_state_change"
	GlassesConnectionError = "connection_error"
	GlassesAuthError       = "auth_error"
	GlassesRequestSingle   = "request_single"
	GlassesReconnect       = "reconnect"
	GlassesTakePhoto       = "take_photo"
)

// ConnectionInit is the first text frame on a glasses link.
type ConnectionInit struct {
	Type      string `json:"type"`
	CoreToken string `json:"coreToken"`
}

// VADStatus reports voice-activity detection from the device.
type VADStatus struct {
	Type   string `json:"type"`
	Status bool   `json:"status"`
}

// ButtonPressEvent is a hardware button press, also available over HTTP.
type ButtonPressEvent struct {
	Type      string `json:"type"`
	ButtonID  string `json:"buttonId"`
	PressType string `json:"pressType"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// HeadPosition reports head pose changes.
type HeadPosition struct {
	Type     string `json:"type"`
	Position string `json:"position"`
}

// BatteryUpdate reports device battery state.
type BatteryUpdate struct {
	Type          string `json:"type"`
	Level         int    `json:"level"`
	Charging      bool   `json:"charging"`
	TimeRemaining *int   `json:"timeRemaining,omitempty"`
}

// LocationUpdate reports device GPS position.
type LocationUpdate struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// CalendarEvent mirrors an upcoming event from the paired phone.
type CalendarEvent struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	EventID  string `json:"eventId"`
	DtStart  string `json:"dtStart"`
	DtEnd    string `json:"dtEnd"`
	TimeZone string `json:"timeZone"`
}

// CoreStatus is a free-form device status report.
type CoreStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// AppLifecycle requests starting or stopping a TPA (start_app / stop_app).
type AppLifecycle struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
}

// GlassesAck acknowledges a successful glasses connection.
type GlassesAck struct {
	Type                  string   `json:"type"`
	SessionID             string   `json:"sessionId"`
	InstalledApps         []AppRef `json:"installedApps"`
	ActiveAppPackageNames []string `json:"activeAppPackageNames"`
	Reconnected           bool     `json:"reconnected,omitempty"`
}

// AppRef is a catalog reference embedded in the connection ack.
type AppRef struct {
	PackageName string `json:"packageName"`
	Name        string `json:"name"`
}

// AppStateChange notifies the device of app start/stop.
type AppStateChange struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	Running     bool   `json:"running"`
}

// DisplayEvent carries one display emission to the device.
type DisplayEvent struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	View        View   `json:"view"`
	Layout      Layout `json:"layout"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// MicStateChange toggles the device microphone.
type MicStateChange struct {
	Type                string `json:"type"`
	IsMicrophoneEnabled bool   `json:"isMicrophoneEnabled"`
}

// ConnectionError reports a non-fatal protocol error to the device.
type ConnectionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AuthError is sent before closing an unauthenticated link.
type AuthError struct {
	Type string `json:"type"`
}

// RequestSingle asks the device for one value of a data type.
type RequestSingle struct {
	Type     string `json:"type"`
	DataType string `json:"data_type"`
}

// TakePhoto instructs the device to capture and upload a photo.
type TakePhoto struct {
	Type          string `json:"type"`
	RequestID     string `json:"requestId"`
	AppID         string `json:"appId"`
	SaveToGallery bool   `json:"saveToGallery"`
}
