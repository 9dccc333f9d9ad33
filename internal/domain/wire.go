package domain

import "time"

// ScreenInfo is one entry of the screen list
type ScreenInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Path         string `json:"path,omitempty"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// ScreenSource is one screen's source plus metadata
type ScreenSource struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	Path         string                 `json:"path,omitempty"`
	Code         string                 `json:"code"`
	Options      map[string]interface{} `json:"options,omitempty"`
	LastModified int64                  `json:"lastModified,omitempty"`
}

// OverrideInfo is one entry of the override list
type OverrideInfo struct {
	ScreenID     string `json:"screenId"`
	SourcePath   string `json:"sourcePath,omitempty"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// OverrideSource is one override's source
type OverrideSource struct {
	ScreenID     string `json:"screenId"`
	Code         string `json:"code"`
	SourcePath   string `json:"sourcePath,omitempty"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// NavigationWire is the navigation config as served, before evaluation
type NavigationWire struct {
	InitialRoute string                 `json:"initialRouteName,omitempty"`
	TabBar       *TabBarConfig          `json:"tabBar,omitempty"`
	Screens      map[string]ScreenRoute `json:"screens,omitempty"`
}

// MillisToTime converts a millisecond epoch stamp; zero stays zero
func MillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// TimeToMillis is the inverse of MillisToTime
func TimeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
