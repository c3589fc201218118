package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrUnknownCommand is returned for a kind outside the supported set.
var ErrUnknownCommand = errors.New("unknown command type")

// ValidationError names the parameter that prevented a command from being
// encoded.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: parameter %q %s", e.Kind, e.Field, e.Reason)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Tab separates fields and CR/LF separate commands on the wire.
	_ = v.RegisterValidation("wiresafe", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\t\r\n")
	})
	return v
}

func check(cmd Command) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "wiresafe":
		reason = "must not contain tab or line breaks"
	}
	return &ValidationError{Kind: cmd.Kind(), Field: fe.Field(), Reason: reason}
}

type line struct {
	verb   string
	fields []string
}

func (l *line) add(key string, v Field) {
	l.fields = append(l.fields, key+"="+string(v))
}

func (l *line) opt(key string, v Field) {
	if v != "" {
		l.add(key, v)
	}
}

func (l *line) String() string {
	if len(l.fields) == 0 {
		return l.verb
	}
	return l.verb + " " + strings.Join(l.fields, "\t")
}

func orDefault(v Field, def string) Field {
	if v == "" {
		return Field(def)
	}
	return v
}

// Encode renders cmd as the line the firmware expects. Missing required
// parameters fail with a *ValidationError and nothing is produced.
func Encode(cmd Command) (string, error) {
	if cmd == nil {
		return "", fmt.Errorf("%w: <nil>", ErrUnknownCommand)
	}
	if s, ok := cmd.(Simple); ok {
		kw, ok := simpleKeywords[s.Op]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownCommand, s.Op)
		}
		return kw, nil
	}
	if err := check(cmd); err != nil {
		return "", err
	}

	switch c := cmd.(type) {
	case SetOption:
		return "SET OPTION " + string(c.Item) + "=" + string(c.Value), nil
	case QueryAttLog:
		l := line{verb: "QUERY ATTLOG"}
		l.add("StartTime", c.StartTime)
		l.add("EndTime", c.EndTime)
		return l.String(), nil
	case QueryAttPhoto:
		l := line{verb: "QUERY ATTPHOTO"}
		l.add("StartTime", c.StartTime)
		l.add("EndTime", c.EndTime)
		return l.String(), nil
	case QueryUserInfo:
		l := line{verb: "QUERY USERINFO"}
		l.add("PIN", c.PIN)
		return l.String(), nil
	case QueryFingerTmp:
		l := line{verb: "QUERY FINGERTMP"}
		l.add("PIN", c.PIN)
		l.opt("FingerID", c.FingerID)
		return l.String(), nil
	case DataUser:
		l := line{verb: "DATA USER"}
		l.add("PIN", c.PIN)
		l.opt("Name", c.Name)
		l.add("Pri", orDefault(c.Privilege, "0"))
		l.opt("Passwd", c.Password)
		l.opt("Card", c.Card)
		l.opt("Grp", c.Group)
		l.opt("TZ", c.Timezone)
		return l.String(), nil
	case DataDelUser:
		l := line{verb: "DATA DEL_USER"}
		l.add("PIN", c.PIN)
		return l.String(), nil
	case DataFP:
		l := line{verb: "DATA FP"}
		l.add("PIN", c.PIN)
		l.add("FID", c.FID)
		l.add("Size", orDefault(c.Size, strconv.Itoa(len(c.Template))))
		l.add("Valid", orDefault(c.Valid, "1"))
		l.add("TMP", c.Template)
		return l.String(), nil
	case DataDelFP:
		l := line{verb: "DATA DEL_FP"}
		l.add("PIN", c.PIN)
		l.opt("FID", c.FID)
		return l.String(), nil
	case EnrollFP:
		l := line{verb: "ENROLL_FP"}
		l.add("PIN", c.PIN)
		l.add("FID", c.FID)
		l.opt("RETRY", c.Retry)
		l.opt("OVERWRITE", c.Overwrite)
		return l.String(), nil
	case UpdateTimezone:
		l := line{verb: "UPDATE TIMEZONE"}
		l.add("TZIndex", c.TZIndex)
		l.add("TZ", c.TZ)
		return l.String(), nil
	case DeleteTimezone:
		// DELETL is what the firmware parses.
		l := line{verb: "DELETL TIMEZONE"}
		l.add("TZIndex", c.TZIndex)
		return l.String(), nil
	case UpdateGLock:
		l := line{verb: "UPDATE GLOCK"}
		l.add("GLockIndex", c.GLockIndex)
		l.add("GroupIDs", c.GroupIDs)
		l.opt("MemberCount", c.MemberCount)
		l.opt("IsValidHoliday", c.IsValidHoliday)
		l.opt("VerifyType", c.VerifyType)
		return l.String(), nil
	case DeleteGLock:
		l := line{verb: "DELETE GLOCK"}
		l.add("GLockIndex", c.GLockIndex)
		return l.String(), nil
	case UpdateSMS:
		l := line{verb: "UPDATE SMS"}
		l.add("MSG", c.Msg)
		l.opt("TAG", c.Tag)
		l.add("UID", c.UID)
		l.opt("MIN", c.Min)
		l.opt("StartTime", c.StartTime)
		return l.String(), nil
	case UpdateUserSMS:
		l := line{verb: "UPDATE USER_SMS"}
		l.add("PIN", c.PIN)
		l.add("UID", c.UID)
		return l.String(), nil
	case UpdateUserPic:
		// Space separated, unlike every other parameterised command.
		return "UPDATE USERPIC PIN2=" + string(c.PIN) + " PICFILE=" + string(c.PicFile), nil
	case DeleteUserPic:
		l := line{verb: "DELETE USERPIC"}
		l.add("PIN", c.PIN)
		return l.String(), nil
	case Shell:
		return "SHELL " + string(c.Command), nil
	case GetFile:
		return "GETFILE " + string(c.Path), nil
	case PutFile:
		if c.Path == "" {
			return "PUTFILE " + string(c.URL), nil
		}
		return "PUTFILE " + string(c.URL) + "\t" + string(c.Path), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

func decodeInto[T Command](params []byte) (Command, error) {
	var c T
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return c, nil
	}
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return c, nil
}

var builders = map[Kind]func([]byte) (Command, error){
	KindSetOption:      decodeInto[SetOption],
	KindQueryAttLog:    decodeInto[QueryAttLog],
	KindQueryAttPhoto:  decodeInto[QueryAttPhoto],
	KindQueryUserInfo:  decodeInto[QueryUserInfo],
	KindQueryFingerTmp: decodeInto[QueryFingerTmp],
	KindDataUser:       decodeInto[DataUser],
	KindDataDelUser:    decodeInto[DataDelUser],
	KindDataFP:         decodeInto[DataFP],
	KindDataDelFP:      decodeInto[DataDelFP],
	KindEnrollFP:       decodeInto[EnrollFP],
	KindUpdateTimezone: decodeInto[UpdateTimezone],
	KindDeleteTimezone: decodeInto[DeleteTimezone],
	KindUpdateGLock:    decodeInto[UpdateGLock],
	KindDeleteGLock:    decodeInto[DeleteGLock],
	KindUpdateSMS:      decodeInto[UpdateSMS],
	KindUpdateUserSMS:  decodeInto[UpdateUserSMS],
	KindUpdateUserPic:  decodeInto[UpdateUserPic],
	KindDeleteUserPic:  decodeInto[DeleteUserPic],
	KindShell:          decodeInto[Shell],
	KindGetFile:        decodeInto[GetFile],
	KindPutFile:        decodeInto[PutFile],
}

// Build turns a kind tag and a JSON parameter object into a typed command.
// Parameters are ignored for simple kinds.
func Build(kind Kind, params []byte) (Command, error) {
	kind = Kind(strings.ToUpper(strings.TrimSpace(string(kind))))
	if kind.IsSimple() {
		return Simple{Op: kind}, nil
	}
	build, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, kind)
	}
	return build(params)
}

// EncodeRequest is Build followed by Encode.
func EncodeRequest(kind Kind, params []byte) (string, error) {
	cmd, err := Build(kind, params)
	if err != nil {
		return "", err
	}
	return Encode(cmd)
}
