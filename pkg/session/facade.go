package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/enbacode/better-hisense-tv/pkg/topics"
)

// sleepStateType is the state type the TV reports while powered off but
// still reachable (standby keeps the broker up).
const sleepStateType = "fake_sleep_0"

// keyPower is the remote key that toggles power.
const keyPower = "KEY_POWER"

// DeviceState is one TV state snapshot. Fetched fresh on every query, never
// cached.
type DeviceState struct {
	StateType   string `json:"statetype"`
	AppName     string `json:"name,omitempty"`
	SourceID    string `json:"sourceid,omitempty"`
	SourceName  string `json:"sourcename,omitempty"`
	DisplayName string `json:"displayname,omitempty"`
}

// Off reports whether the snapshot shows the TV powered off.
func (s DeviceState) Off() bool {
	return s.StateType == sleepStateType
}

// Volume is the TV's volume report.
type Volume struct {
	Type  int `json:"volume_type"`
	Value int `json:"volume_value"`
}

// Source is one entry of the TV's input source list.
type Source struct {
	ID          string `json:"sourceid"`
	Name        string `json:"sourcename"`
	DisplayName string `json:"displayname"`
	IsSignal    int    `json:"is_signal"`
}

// App is one entry of the TV's installed app list. The ID stays raw because
// firmware revisions disagree on whether it is a number or a string, and it
// must echo back byte-identical in launch requests.
type App struct {
	ID   json.RawMessage `json:"appId"`
	Name string          `json:"name"`
	URL  string          `json:"url"`
}

// GetState fetches the TV's current state.
func (s *Session) GetState(ctx context.Context) (DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getState(ctx)
}

func (s *Session) getState(ctx context.Context) (DeviceState, error) {
	payload, err := s.query(ctx,
		s.ns.Broadcast+topics.State,
		s.ns.Broadcast+topics.State,
		s.ns.TVUI+topics.GetTVState,
	)
	if err != nil {
		return DeviceState{}, err
	}
	var state DeviceState
	if err := json.Unmarshal(payload, &state); err != nil {
		return DeviceState{}, fmt.Errorf("%w: state: %v", ErrMalformedPayload, err)
	}
	return state, nil
}

// GetVolume fetches the TV's current volume.
func (s *Session) GetVolume(ctx context.Context) (Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.query(ctx,
		s.ns.Broadcast+topics.VolumeChange,
		s.ns.Broadcast+topics.VolumeChange,
		s.ns.TVPlatform+topics.GetVolume,
	)
	if err != nil {
		return Volume{}, err
	}
	var vol Volume
	if err := json.Unmarshal(payload, &vol); err != nil {
		return Volume{}, fmt.Errorf("%w: volume: %v", ErrMalformedPayload, err)
	}
	return vol, nil
}

// GetSourceList fetches the TV's input sources.
func (s *Session) GetSourceList(ctx context.Context) ([]Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.query(ctx,
		s.ns.Mobile+topics.SourceList,
		s.ns.Mobile+topics.SourceList,
		s.ns.TVUI+topics.GetSourceList,
	)
	if err != nil {
		return nil, err
	}
	var sources []Source
	if err := json.Unmarshal(payload, &sources); err != nil {
		return nil, fmt.Errorf("%w: source list: %v", ErrMalformedPayload, err)
	}
	return sources, nil
}

// GetAppList fetches the TV's installed apps.
func (s *Session) GetAppList(ctx context.Context) ([]App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAppList(ctx)
}

func (s *Session) getAppList(ctx context.Context) ([]App, error) {
	payload, err := s.query(ctx,
		s.ns.Mobile+topics.AppList,
		s.ns.Mobile+topics.AppList,
		s.ns.TVUI+topics.GetAppList,
	)
	if err != nil {
		return nil, err
	}
	var apps []App
	if err := json.Unmarshal(payload, &apps); err != nil {
		return nil, fmt.Errorf("%w: app list: %v", ErrMalformedPayload, err)
	}
	return apps, nil
}

// SendKey emulates a remote key press. A powered-off TV is a deliberate
// no-op returning false, not an error.
func (s *Session) SendKey(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getState(ctx)
	if err != nil {
		return false, err
	}
	if state.Off() {
		return false, nil
	}
	if err := s.command(ctx, s.ns.Remote+topics.SendKey, []byte(key)); err != nil {
		return false, err
	}
	return true, nil
}

// ChangeSource switches the TV to the given input source. Off is a no-op
// returning false.
func (s *Session) ChangeSource(ctx context.Context, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getState(ctx)
	if err != nil {
		return false, err
	}
	if state.Off() {
		return false, nil
	}
	body, _ := json.Marshal(map[string]string{"sourceid": sourceID})
	if err := s.command(ctx, s.ns.TVUI+topics.ChangeSource, body); err != nil {
		return false, err
	}
	return true, nil
}

// ChangeVolume sets the TV volume. The level goes over the wire as a bare
// decimal string. Off is a no-op returning false.
func (s *Session) ChangeVolume(ctx context.Context, volume int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getState(ctx)
	if err != nil {
		return false, err
	}
	if state.Off() {
		return false, nil
	}
	if err := s.command(ctx, s.ns.TVPlatform+topics.ChangeVolume, []byte(strconv.Itoa(volume))); err != nil {
		return false, err
	}
	return true, nil
}

// LaunchApp starts an app by name, matched case-insensitively against the
// app list (fetched fresh when cached is nil). No match or a powered-off TV
// is a no-op returning false.
func (s *Session) LaunchApp(ctx context.Context, name string, cached []App) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps := cached
	if apps == nil {
		var err error
		apps, err = s.getAppList(ctx)
		if err != nil {
			return false, err
		}
	}

	var match *App
	for i := range apps {
		if strings.EqualFold(apps[i].Name, name) {
			match = &apps[i]
			break
		}
	}
	if match == nil {
		return false, nil
	}

	state, err := s.getState(ctx)
	if err != nil {
		return false, err
	}
	if state.Off() {
		return false, nil
	}

	body, _ := json.Marshal(struct {
		ID   json.RawMessage `json:"appId"`
		Name string          `json:"name"`
		URL  string          `json:"url"`
	}{match.ID, match.Name, match.URL})
	if err := s.command(ctx, s.ns.TVUI+topics.LaunchApp, body); err != nil {
		return false, err
	}
	return true, nil
}

// PowerCycle presses the power key unconditionally. It is the only operation
// allowed while the TV is off, since it is the means of turning it on.
func (s *Session) PowerCycle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command(ctx, s.ns.Remote+topics.SendKey, []byte(keyPower))
}

// TurnOn power-cycles the TV only if it is currently off. Returns whether a
// power cycle was issued.
func (s *Session) TurnOn(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getState(ctx)
	if err != nil {
		return false, err
	}
	if !state.Off() {
		return false, nil
	}
	if err := s.command(ctx, s.ns.Remote+topics.SendKey, []byte(keyPower)); err != nil {
		return false, err
	}
	return true, nil
}

// TurnOff power-cycles the TV only if it is currently on. Returns whether a
// power cycle was issued.
func (s *Session) TurnOff(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getState(ctx)
	if err != nil {
		return false, err
	}
	if state.Off() {
		return false, nil
	}
	if err := s.command(ctx, s.ns.Remote+topics.SendKey, []byte(keyPower)); err != nil {
		return false, err
	}
	return true, nil
}
