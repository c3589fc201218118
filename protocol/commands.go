package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind identifies one of the command types a terminal understands.
type Kind string

const (
	KindReboot         Kind = "REBOOT"
	KindInfo           Kind = "INFO"
	KindCheck          Kind = "CHECK"
	KindLog            Kind = "LOG"
	KindClearLog       Kind = "CLEAR_LOG"
	KindClearData      Kind = "CLEAR_DATA"
	KindClearPhoto     Kind = "CLEAR_PHOTO"
	KindACUnlock       Kind = "AC_UNLOCK"
	KindACUnalarm      Kind = "AC_UNALARM"
	KindReloadOptions  Kind = "RELOAD_OPTIONS"
	KindSetOption      Kind = "SET_OPTION"
	KindQueryAttLog    Kind = "QUERY_ATTLOG"
	KindQueryAttPhoto  Kind = "QUERY_ATTPHOTO"
	KindQueryUserInfo  Kind = "QUERY_USERINFO"
	KindQueryFingerTmp Kind = "QUERY_FINGERTMP"
	KindDataUser       Kind = "DATA_USER"
	KindDataDelUser    Kind = "DATA_DEL_USER"
	KindDataFP         Kind = "DATA_FP"
	KindDataDelFP      Kind = "DATA_DEL_FP"
	KindEnrollFP       Kind = "ENROLL_FP"
	KindUpdateTimezone Kind = "UPDATE_TIMEZONE"
	KindDeleteTimezone Kind = "DELETE_TIMEZONE"
	KindUpdateGLock    Kind = "UPDATE_GLOCK"
	KindDeleteGLock    Kind = "DELETE_GLOCK"
	KindUpdateSMS      Kind = "UPDATE_SMS"
	KindUpdateUserSMS  Kind = "UPDATE_USER_SMS"
	KindUpdateUserPic  Kind = "UPDATE_USERPIC"
	KindDeleteUserPic  Kind = "DELETE_USERPIC"
	KindShell          Kind = "SHELL"
	KindGetFile        Kind = "GETFILE"
	KindPutFile        Kind = "PUTFILE"
)

// simpleKeywords maps parameterless kinds to their literal wire keyword.
var simpleKeywords = map[Kind]string{
	KindReboot:        "REBOOT",
	KindInfo:          "INFO",
	KindCheck:         "CHECK",
	KindLog:           "LOG",
	KindClearLog:      "CLEAR LOG",
	KindClearData:     "CLEAR DATA",
	KindClearPhoto:    "CLEAR PHOTO",
	KindACUnlock:      "AC_UNLOCK",
	KindACUnalarm:     "AC_UNALARM",
	KindReloadOptions: "RELOAD OPTIONS",
}

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindReboot, KindInfo, KindCheck, KindLog, KindClearLog, KindClearData,
		KindClearPhoto, KindACUnlock, KindACUnalarm, KindReloadOptions,
		KindSetOption, KindQueryAttLog, KindQueryAttPhoto, KindQueryUserInfo,
		KindQueryFingerTmp, KindDataUser, KindDataDelUser, KindDataFP,
		KindDataDelFP, KindEnrollFP, KindUpdateTimezone, KindDeleteTimezone,
		KindUpdateGLock, KindDeleteGLock, KindUpdateSMS, KindUpdateUserSMS,
		KindUpdateUserPic, KindDeleteUserPic, KindShell, KindGetFile, KindPutFile,
	}
}

// IsSimple reports whether k takes no parameters.
func (k Kind) IsSimple() bool {
	_, ok := simpleKeywords[k]
	return ok
}

// Command is a closed set of structured terminal commands. Only types in
// this package implement it.
type Command interface {
	Kind() Kind
	isCommand()
}

// Field is a parameter value. It accepts JSON strings, numbers and booleans
// so operator tooling can send `"fid": 0` or `"fid": "0"` interchangeably.
// An empty Field means "not supplied".
type Field string

func (f *Field) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*f = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
	case raw == "true" || raw == "false":
		*f = Field(raw)
	default:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("unsupported parameter value %s", raw)
		}
		*f = Field(raw)
	}
	return nil
}

// Simple is any parameterless command (REBOOT, INFO, CLEAR LOG, ...).
type Simple struct {
	Op Kind
}

type SetOption struct {
	Item  Field `json:"item" validate:"required,wiresafe"`
	Value Field `json:"value" validate:"required,wiresafe"`
}

type QueryAttLog struct {
	StartTime Field `json:"startTime" validate:"required,wiresafe"`
	EndTime   Field `json:"endTime" validate:"required,wiresafe"`
}

type QueryAttPhoto struct {
	StartTime Field `json:"startTime" validate:"required,wiresafe"`
	EndTime   Field `json:"endTime" validate:"required,wiresafe"`
}

type QueryUserInfo struct {
	PIN Field `json:"pin" validate:"required,wiresafe"`
}

type QueryFingerTmp struct {
	PIN      Field `json:"pin" validate:"required,wiresafe"`
	FingerID Field `json:"fingerId" validate:"wiresafe"`
}

// DataUser creates or updates a user record on the terminal.
type DataUser struct {
	PIN       Field `json:"pin" validate:"required,wiresafe"`
	Name      Field `json:"name" validate:"wiresafe"`
	Privilege Field `json:"privilege" validate:"wiresafe"`
	Password  Field `json:"password" validate:"wiresafe"`
	Card      Field `json:"card" validate:"wiresafe"`
	Group     Field `json:"group" validate:"wiresafe"`
	Timezone  Field `json:"timezone" validate:"wiresafe"`
}

type DataDelUser struct {
	PIN Field `json:"pin" validate:"required,wiresafe"`
}

// DataFP uploads a fingerprint template. Size defaults to the template
// length and Valid to 1.
type DataFP struct {
	PIN      Field `json:"pin" validate:"required,wiresafe"`
	FID      Field `json:"fid" validate:"required,wiresafe"`
	Size     Field `json:"size" validate:"wiresafe"`
	Valid    Field `json:"valid" validate:"wiresafe"`
	Template Field `json:"tmp" validate:"required,wiresafe"`
}

type DataDelFP struct {
	PIN Field `json:"pin" validate:"required,wiresafe"`
	FID Field `json:"fid" validate:"wiresafe"`
}

type EnrollFP struct {
	PIN       Field `json:"pin" validate:"required,wiresafe"`
	FID       Field `json:"fid" validate:"required,wiresafe"`
	Retry     Field `json:"retry" validate:"wiresafe"`
	Overwrite Field `json:"overwrite" validate:"wiresafe"`
}

type UpdateTimezone struct {
	TZIndex Field `json:"tzid" validate:"required,wiresafe"`
	TZ      Field `json:"itime" validate:"required,wiresafe"`
}

type DeleteTimezone struct {
	TZIndex Field `json:"tzid" validate:"required,wiresafe"`
}

type UpdateGLock struct {
	GLockIndex     Field `json:"glid" validate:"required,wiresafe"`
	GroupIDs       Field `json:"groupIds" validate:"required,wiresafe"`
	MemberCount    Field `json:"memberCount" validate:"wiresafe"`
	IsValidHoliday Field `json:"isValidHoliday" validate:"wiresafe"`
	VerifyType     Field `json:"verifyType" validate:"wiresafe"`
}

type DeleteGLock struct {
	GLockIndex Field `json:"glid" validate:"required,wiresafe"`
}

type UpdateSMS struct {
	Msg       Field `json:"msg" validate:"required,wiresafe"`
	Tag       Field `json:"tag" validate:"wiresafe"`
	UID       Field `json:"uid" validate:"required,wiresafe"`
	Min       Field `json:"min" validate:"wiresafe"`
	StartTime Field `json:"startTime" validate:"wiresafe"`
}

type UpdateUserSMS struct {
	PIN Field `json:"pin" validate:"required,wiresafe"`
	UID Field `json:"uid" validate:"required,wiresafe"`
}

type UpdateUserPic struct {
	PIN     Field `json:"pin" validate:"required,wiresafe"`
	PicFile Field `json:"picFile" validate:"required,wiresafe"`
}

type DeleteUserPic struct {
	PIN Field `json:"pin" validate:"required,wiresafe"`
}

// Shell runs a raw command line on the terminal.
type Shell struct {
	Command Field `json:"cmdString" validate:"required,wiresafe"`
}

type GetFile struct {
	Path Field `json:"filePath" validate:"required,wiresafe"`
}

type PutFile struct {
	URL  Field `json:"url" validate:"required,wiresafe"`
	Path Field `json:"filePath" validate:"wiresafe"`
}

func (c Simple) Kind() Kind         { return c.Op }
func (SetOption) Kind() Kind        { return KindSetOption }
func (QueryAttLog) Kind() Kind      { return KindQueryAttLog }
func (QueryAttPhoto) Kind() Kind    { return KindQueryAttPhoto }
func (QueryUserInfo) Kind() Kind    { return KindQueryUserInfo }
func (QueryFingerTmp) Kind() Kind   { return KindQueryFingerTmp }
func (DataUser) Kind() Kind         { return KindDataUser }
func (DataDelUser) Kind() Kind      { return KindDataDelUser }
func (DataFP) Kind() Kind           { return KindDataFP }
func (DataDelFP) Kind() Kind        { return KindDataDelFP }
func (EnrollFP) Kind() Kind         { return KindEnrollFP }
func (UpdateTimezone) Kind() Kind   { return KindUpdateTimezone }
func (DeleteTimezone) Kind() Kind   { return KindDeleteTimezone }
func (UpdateGLock) Kind() Kind      { return KindUpdateGLock }
func (DeleteGLock) Kind() Kind      { return KindDeleteGLock }
func (UpdateSMS) Kind() Kind        { return KindUpdateSMS }
func (UpdateUserSMS) Kind() Kind    { return KindUpdateUserSMS }
func (UpdateUserPic) Kind() Kind    { return KindUpdateUserPic }
func (DeleteUserPic) Kind() Kind    { return KindDeleteUserPic }
func (Shell) Kind() Kind            { return KindShell }
func (GetFile) Kind() Kind          { return KindGetFile }
func (PutFile) Kind() Kind          { return KindPutFile }

func (Simple) isCommand()         {}
func (SetOption) isCommand()      {}
func (QueryAttLog) isCommand()    {}
func (QueryAttPhoto) isCommand()  {}
func (QueryUserInfo) isCommand()  {}
func (QueryFingerTmp) isCommand() {}
func (DataUser) isCommand()       {}
func (DataDelUser) isCommand()    {}
func (DataFP) isCommand()         {}
func (DataDelFP) isCommand()      {}
func (EnrollFP) isCommand()       {}
func (UpdateTimezone) isCommand() {}
func (DeleteTimezone) isCommand() {}
func (UpdateGLock) isCommand()    {}
func (DeleteGLock) isCommand()    {}
func (UpdateSMS) isCommand()      {}
func (UpdateUserSMS) isCommand()  {}
func (UpdateUserPic) isCommand()  {}
func (DeleteUserPic) isCommand()  {}
func (Shell) isCommand()          {}
func (GetFile) isCommand()        {}
func (PutFile) isCommand()        {}
