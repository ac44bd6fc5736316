package types

// TabView is the tab-strip projection of one tab.
type TabView struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Loading bool   `json:"loading"`
	Active  bool   `json:"active"`
}

// View is the full UI projection: tab strip, address bar and loading
// indicator, plus the tunnel endpoint currently in effect.
type View struct {
	Tabs     []TabView `json:"tabs"`
	ActiveID int       `json:"active_id"`
	Address  string    `json:"address"`
	Progress int       `json:"progress"`
	Endpoint string    `json:"endpoint"`
}

// Preset is a named tunnel endpoint offered by the settings surface.
type Preset struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// SettingsView describes the settings surface.
type SettingsView struct {
	Endpoint string   `json:"endpoint"`
	Presets  []Preset `json:"presets"`
}

// MessageNavigate is the only inbound cross-context message type accepted.
const MessageNavigate = "navigate"

// Message is a cross-context message posted by embedded content.
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}
