// Package topics builds the fixed topic namespace a VIDAA TV serves its
// control protocol under. All paths hang off one of five base prefixes,
// four of which embed the pairing client ID.
package topics

// Namespace holds the five topic base paths of a paired session. All fields
// end with a trailing slash so suffixes concatenate directly.
type Namespace struct {
	// TVUI is the TV's ui_service action base (app connect, auth code,
	// source and app actions).
	TVUI string

	// TVPlatform is the TV's platform_service base (token and volume actions).
	TVPlatform string

	// Mobile is the per-client inbound base the TV replies on.
	Mobile string

	// Broadcast is the shared inbound base for state and volume broadcasts.
	// It does not embed the client ID.
	Broadcast string

	// Remote is the TV's remote_service base (key emulation).
	Remote string
}

// Build derives the namespace for a client ID. Pure; building twice from the
// same ID yields identical namespaces.
func Build(clientID string) Namespace {
	return Namespace{
		TVUI:       "/remoteapp/tv/ui_service/" + clientID + "/",
		TVPlatform: "/remoteapp/tv/platform_service/" + clientID + "/",
		Mobile:     "/remoteapp/mobile/" + clientID + "/",
		Broadcast:  "/remoteapp/mobile/broadcast/",
		Remote:     "/remoteapp/tv/remote_service/" + clientID + "/",
	}
}

// Inbound reply topics, relative to their base.
const (
	// Authentication is the mobile suffix the TV acknowledges an app-connect
	// announcement on.
	Authentication = "ui_service/data/authentication"

	// AuthenticationCode is the mobile suffix carrying the code verification
	// verdict.
	AuthenticationCode = "ui_service/data/authenticationcode"

	// TokenIssuance is the mobile suffix new token payloads arrive on.
	TokenIssuance = "platform_service/data/tokenissuance"

	// State is the broadcast suffix TV state replies arrive on.
	State = "ui_service/state"

	// VolumeChange is the broadcast suffix volume replies arrive on.
	VolumeChange = "platform_service/actions/volumechange"

	// HotelModeChange is the broadcast suffix for hotel mode notifications.
	HotelModeChange = "ui_service/data/hotelmodechange"

	// SourceList and AppList are the mobile suffixes list replies arrive on.
	SourceList = "ui_service/data/sourcelist"
	AppList    = "ui_service/data/applist"
)

// Outbound request topics, relative to their base.
const (
	// AppConnect is the TVUI suffix for the pairing announcement.
	AppConnect = "actions/vidaa_app_connect"

	// SubmitAuthCode is the TVUI suffix the entered code is published to.
	SubmitAuthCode = "actions/authenticationcode"

	// CloseAuthCode is the TVUI suffix that dismisses the on-screen code.
	CloseAuthCode = "actions/authenticationcodeclose"

	// GetToken is the TVPlatform suffix token requests are published to.
	GetToken = "data/gettoken"

	// GetTVState, GetSourceList, GetAppList request the matching replies.
	GetTVState    = "actions/gettvstate"
	GetSourceList = "actions/sourcelist"
	GetAppList    = "actions/applist"

	// GetVolume and ChangeVolume are TVPlatform suffixes.
	GetVolume    = "actions/getvolume"
	ChangeVolume = "actions/changevolume"

	// ChangeSource and LaunchApp are TVUI suffixes.
	ChangeSource = "actions/changesource"
	LaunchApp    = "actions/launchapp"

	// SendKey is the Remote suffix for key emulation.
	SendKey = "actions/sendkey"
)
