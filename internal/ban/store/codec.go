package store

import (
	"errors"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"banguard/internal/ban/models"
)

// Record field names.
const (
	fieldName      = "name"
	fieldAccountID = "uuid"
	fieldAddress   = "ip"
	fieldReason    = "reason"
	fieldStartTime = "start_time"
	fieldEndTime   = "end_time"
	fieldState     = "state"
)

var recordFields = []string{fieldName, fieldAccountID, fieldAddress, fieldReason, fieldStartTime, fieldEndTime, fieldState}

var errMissingEndTime = errors.New("end_time missing or not an integer")

// encodeRecord renders one record with every field present; unknown keys and
// a permanent end are written as null.
func encodeRecord(s models.Subject, reason string, start time.Time, end *time.Time, active bool) *yaml.Node {
	m := newMapping()
	set(m, fieldName, strNode(s.Name))
	set(m, fieldAccountID, optionalStr(s.AccountID))
	set(m, fieldAddress, optionalStr(s.Address))
	set(m, fieldReason, strNode(reason))
	set(m, fieldStartTime, intNode(start.UnixMilli()))
	if end != nil {
		set(m, fieldEndTime, intNode(end.UnixMilli()))
	} else {
		set(m, fieldEndTime, nullNode())
	}
	set(m, fieldState, boolNode(active))
	return m
}

func encodeBan(b models.Ban) *yaml.Node {
	return encodeRecord(b.Subject, b.Reason, b.StartTime, b.EndTime, b.Active)
}

func encodeTempBan(t models.TempBan) *yaml.Node {
	end := t.EndTime
	return encodeRecord(t.Subject, t.Reason, t.StartTime, &end, t.Active)
}

func optionalStr(v *string) *yaml.Node {
	if v == nil {
		return nullNode()
	}
	return strNode(*v)
}

// rawRecord is what survives defensive decoding of a single record.
type rawRecord struct {
	subject models.Subject
	reason  string
	start   time.Time
	end     *time.Time
	active  bool
}

// decodeRecord reads one record keyed by name. Records missing a required
// field are rejected; optional fields of the wrong type decode as absent.
func decodeRecord(name string, n *yaml.Node) (rawRecord, error) {
	if n == nil || n.Kind != yaml.MappingNode {
		return rawRecord{}, errors.New("record is not a mapping")
	}
	reason, ok := scalarString(lookup(n, fieldReason))
	if !ok {
		return rawRecord{}, errors.New("reason missing or not a string")
	}
	start, ok := scalarMillis(lookup(n, fieldStartTime))
	if !ok {
		return rawRecord{}, errors.New("start_time missing or not an integer")
	}
	active, ok := scalarBool(lookup(n, fieldState))
	if !ok {
		return rawRecord{}, errors.New("state missing or not a boolean")
	}

	rec := rawRecord{
		subject: models.Subject{Name: name},
		reason:  reason,
		start:   start,
		active:  active,
	}
	if v, ok := scalarString(lookup(n, fieldAccountID)); ok {
		rec.subject.AccountID = &v
	}
	if v, ok := scalarString(lookup(n, fieldAddress)); ok {
		rec.subject.Address = &v
	}
	if end, ok := scalarMillis(lookup(n, fieldEndTime)); ok {
		rec.end = &end
	}
	return rec, nil
}

func (r rawRecord) ban() models.Ban {
	return models.Ban{Subject: r.subject, Reason: r.reason, StartTime: r.start, EndTime: r.end, Active: r.active}
}

func (r rawRecord) tempBan() (models.TempBan, error) {
	if r.end == nil {
		return models.TempBan{}, errMissingEndTime
	}
	return models.TempBan{Subject: r.subject, Reason: r.reason, StartTime: r.start, EndTime: *r.end, Active: r.active}, nil
}

func scalarString(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return "", false
	}
	return n.Value, true
}

func scalarMillis(n *yaml.Node) (time.Time, bool) {
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" {
		return time.Time{}, false
	}
	var ms int64
	if err := n.Decode(&ms); err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func scalarBool(n *yaml.Node) (bool, bool) {
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() != "!!bool" {
		return false, false
	}
	var v bool
	if err := n.Decode(&v); err != nil {
		return false, false
	}
	return v, true
}

// decodeBans reads the bans section, skipping records that fail decoding.
func decodeBans(section *yaml.Node, logger *slog.Logger) map[string]models.Ban {
	out := make(map[string]models.Ban)
	eachRecord(section, sectionBans, logger, func(name string, rec rawRecord) {
		out[name] = rec.ban()
	})
	return out
}

// decodeTempBans reads the fakebans section; temporary bans also require an
// end_time.
func decodeTempBans(section *yaml.Node, logger *slog.Logger) map[string]models.TempBan {
	out := make(map[string]models.TempBan)
	eachRecord(section, sectionTempBans, logger, func(name string, rec rawRecord) {
		t, err := rec.tempBan()
		if err != nil {
			logger.Warn("skipping unreadable record", "section", sectionTempBans, "name", name, "error", err)
			return
		}
		out[name] = t
	})
	return out
}

func eachRecord(section *yaml.Node, label string, logger *slog.Logger, fn func(name string, rec rawRecord)) {
	if section == nil || section.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(section.Content); i += 2 {
		name := section.Content[i].Value
		rec, err := decodeRecord(name, section.Content[i+1])
		if err != nil {
			logger.Warn("skipping unreadable record", "section", label, "name", name, "error", err)
			continue
		}
		fn(name, rec)
	}
}

type rawDefaults struct {
	BanReason     string `yaml:"ban_reason"`
	KickReason    string `yaml:"kick_reason"`
	TempBanReason string `yaml:"fakeban_reason"`
}

type rawTempBanSettings struct {
	DurationMinutes            int    `yaml:"duration_minutes"`
	ConfirmationMessage        string `yaml:"confirmation_message"`
	ConfirmationTimeoutMinutes int    `yaml:"confirmation_timeout_minutes"`
}

type rawAllowlist struct {
	Enabled           bool     `yaml:"enabled"`
	Players           []string `yaml:"players"`
	ProtectionMessage string   `yaml:"protection_message"`
}

// decodeSettings reads the settings sections over the built-in defaults. A
// section that fails to decode keeps its defaults.
func decodeSettings(root *yaml.Node, logger *slog.Logger) models.Settings {
	settings := models.DefaultSettings()

	defaults := rawDefaults{
		BanReason:     settings.Defaults.BanReason,
		KickReason:    settings.Defaults.KickReason,
		TempBanReason: settings.Defaults.TempBanReason,
	}
	if decodeSection(root, sectionDefaults, &defaults, logger) {
		settings.Defaults = models.DefaultReasons{
			BanReason:     defaults.BanReason,
			KickReason:    defaults.KickReason,
			TempBanReason: defaults.TempBanReason,
		}
	}

	tempBan := rawTempBanSettings{
		DurationMinutes:            int(settings.TempBan.Duration / time.Minute),
		ConfirmationMessage:        settings.TempBan.ConfirmationMessage,
		ConfirmationTimeoutMinutes: int(settings.TempBan.ConfirmationTimeout / time.Minute),
	}
	if decodeSection(root, sectionTempBan, &tempBan, logger) {
		if tempBan.DurationMinutes > 0 {
			settings.TempBan.Duration = time.Duration(tempBan.DurationMinutes) * time.Minute
		} else {
			logger.Warn("ignoring non-positive setting", "key", sectionTempBan+".duration_minutes", "value", tempBan.DurationMinutes)
		}
		if tempBan.ConfirmationTimeoutMinutes > 0 {
			settings.TempBan.ConfirmationTimeout = time.Duration(tempBan.ConfirmationTimeoutMinutes) * time.Minute
		} else {
			logger.Warn("ignoring non-positive setting", "key", sectionTempBan+".confirmation_timeout_minutes", "value", tempBan.ConfirmationTimeoutMinutes)
		}
		settings.TempBan.ConfirmationMessage = tempBan.ConfirmationMessage
	}

	allowlist := rawAllowlist{
		Enabled:           settings.Allowlist.Enabled,
		Players:           settings.Allowlist.Names,
		ProtectionMessage: settings.Allowlist.ProtectionMessage,
	}
	if decodeSection(root, sectionAllowlist, &allowlist, logger) {
		settings.Allowlist = models.AllowlistSettings{
			Enabled:           allowlist.Enabled,
			Names:             allowlist.Players,
			ProtectionMessage: allowlist.ProtectionMessage,
		}
	}
	return settings
}

func decodeSection(root *yaml.Node, key string, out any, logger *slog.Logger) bool {
	n := lookup(root, key)
	if n == nil {
		return false
	}
	if n.Kind != yaml.MappingNode {
		logger.Warn("settings section is not a mapping, using defaults", "section", key)
		return false
	}
	if err := n.Decode(out); err != nil {
		logger.Warn("settings section unreadable, using defaults", "section", key, "error", err)
		return false
	}
	return true
}
