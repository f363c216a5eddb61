package kasa

// Bulbs take partial light states, only the fields that are set change
type lightState struct {
	OnOff      *int `json:"on_off,omitempty"`
	Brightness *int `json:"brightness,omitempty"`
	Hue        *int `json:"hue,omitempty"`
	Saturation *int `json:"saturation,omitempty"`
	// Has to be 0 for hue/saturation to take effect
	ColorTemp        *int `json:"color_temp,omitempty"`
	TransitionPeriod int  `json:"transition_period"`
}

type GetSysinfo struct{}

type system struct {
	GetSysinfo *GetSysinfo `json:"get_sysinfo,omitempty"`
}

type lighting struct {
	TransitionLightState *lightState `json:"transition_light_state,omitempty"`
}

type cmd struct {
	System   *system   `json:"system,omitempty"`
	Lighting *lighting `json:"smartlife.iot.smartbulb.lightingservice,omitempty"`
}

type errCode struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg,omitempty"`
}

type Sysinfo struct {
	errCode

	Alias      string `json:"alias"`
	Model      string `json:"model"`
	DeviceID   string `json:"deviceId"`
	IsColor    int    `json:"is_color"`
	IsDimmable int    `json:"is_dimmable"`
}

type reply struct {
	System struct {
		GetSysinfo Sysinfo `json:"get_sysinfo"`
	} `json:"system"`

	Lighting struct {
		TransitionLightState errCode `json:"transition_light_state"`
	} `json:"smartlife.iot.smartbulb.lightingservice"`
}

func newLightState(state lightState) cmd {
	return cmd{Lighting: &lighting{TransitionLightState: &state}}
}

func newGetSysinfo() cmd {
	return cmd{System: &system{GetSysinfo: &GetSysinfo{}}}
}

func intPtr(v int) *int {
	return &v
}
