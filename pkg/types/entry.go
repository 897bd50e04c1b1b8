package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntrySchemaVersion is the version written into every stored entry. Records
// without a version are the unversioned legacy shape and are migrated on
// decode.
const EntrySchemaVersion = 1

// DisplayTimeLayout renders an entry's creation instant for people.
const DisplayTimeLayout = "2006/01/02 15:04:05"

// DateLayout is the calendar date format used by the date filter.
const DateLayout = "2006-01-02"

// Mood is the label attached to an entry.
type Mood string

// Moods, from best to worst. MoodNeutral is the default.
const (
	MoodGreat   Mood = "great"
	MoodGood    Mood = "good"
	MoodNeutral Mood = "meh"
	MoodBad     Mood = "bad"
	MoodAwful   Mood = "awful"
)

// Moods lists every recognized mood in display order.
var Moods = []Mood{MoodGreat, MoodGood, MoodNeutral, MoodBad, MoodAwful}

// ParseMood returns the mood named by s. An empty string is the neutral mood.
func ParseMood(s string) (Mood, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MoodNeutral, nil
	}
	for _, m := range Moods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMood, s)
}

// Valid reports whether m is one of the recognized moods.
func (m Mood) Valid() bool {
	return slices.Contains(Moods, m)
}

// Entry is one journal record. Entries are immutable once stored: an edit is
// a delete followed by a new entry.
type Entry struct {
	SchemaVersion int             `json:"schemaVersion"`
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	DisplayTime   string          `json:"displayTime"`
	TextContent   string          `json:"textContent"`
	RichContent   json.RawMessage `json:"richContent,omitempty"`
	Images        []string        `json:"images"`
	Tags          []string        `json:"tags"`
	Mood          Mood            `json:"mood"`
}

// NewEntry builds a normalized entry created at now with a fresh id.
func NewEntry(text string, rich json.RawMessage, images []string, mood Mood, now time.Time) Entry {
	e := Entry{
		ID:          NewID(),
		Timestamp:   now.UTC(),
		TextContent: text,
		RichContent: rich,
		Images:      images,
		Mood:        mood,
	}
	e.Normalize()
	return e
}

// Normalize recomputes the derived fields (display time, tags) and fills
// defaults so that two entries with the same authoritative fields encode
// identically.
func (e *Entry) Normalize() {
	e.SchemaVersion = EntrySchemaVersion
	e.DisplayTime = FormatDisplayTime(e.Timestamp)
	e.Tags = ExtractTags(e.TextContent)
	if e.Images == nil {
		e.Images = []string{}
	}
	if !e.Mood.Valid() {
		e.Mood = MoodNeutral
	}
	if len(e.RichContent) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, e.RichContent); err == nil {
			e.RichContent = buf.Bytes()
		}
	}
}

// Date returns the UTC calendar date of the entry in DateLayout.
func (e Entry) Date() string {
	return e.Timestamp.UTC().Format(DateLayout)
}

// FormatDisplayTime renders t in local time. The zero time renders empty.
func FormatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DisplayTimeLayout)
}

var tagPattern = regexp.MustCompile(`#([^\s#]+)`)

// ExtractTags returns the lowercase hashtags found in text, without
// duplicates, in order of first appearance.
func ExtractTags(text string) []string {
	tags := []string{}
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// NewID generates a new entry id. UUID v7 ids sort by creation time and
// carry random bits so ids minted in the same millisecond still differ.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

// entryRecord is the on-disk shape accepted by UnmarshalJSON. It is a
// superset of Entry that also carries the fields of unversioned records.
type entryRecord struct {
	SchemaVersion int             `json:"schemaVersion"`
	ID            json.RawMessage `json:"id"`
	Timestamp     string          `json:"timestamp"`
	TextContent   *string         `json:"textContent"`
	RichContent   json.RawMessage `json:"richContent"`
	Images        []string        `json:"images"`
	Mood          string          `json:"mood"`

	// Unversioned records.
	Content string          `json:"content"`
	Delta   json.RawMessage `json:"delta"`
}

// UnmarshalJSON decodes a stored entry, migrating unversioned records to the
// current schema. Derived fields in the input are ignored and recomputed.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var rec entryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.SchemaVersion > EntrySchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSchema, rec.SchemaVersion)
	}

	id, err := decodeID(rec.ID)
	if err != nil {
		return err
	}

	var ts time.Time
	if rec.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", rec.Timestamp, err)
		}
		ts = ts.UTC()
	}

	out := Entry{
		ID:          id,
		Timestamp:   ts,
		RichContent: nullToEmpty(rec.RichContent),
		Images:      rec.Images,
		Mood:        Mood(strings.ToLower(rec.Mood)),
	}
	if rec.TextContent != nil {
		out.TextContent = *rec.TextContent
	}

	if rec.SchemaVersion == 0 {
		if rec.TextContent == nil {
			out.TextContent = rec.Content
		}
		if len(out.RichContent) == 0 {
			out.RichContent = nullToEmpty(rec.Delta)
		}
	}

	out.Normalize()
	*e = out
	return nil
}

// decodeID accepts string ids and the numeric ids of unversioned records.
func decodeID(raw json.RawMessage) (string, error) {
	raw = nullToEmpty(raw)
	if len(raw) == 0 {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

// Collection is the ordered list of entries, newest first.
type Collection []Entry

// Index returns the position of the entry with id, or -1.
func (c Collection) Index(id string) int {
	return slices.IndexFunc(c, func(e Entry) bool { return e.ID == id })
}

// IDs returns the set of entry ids in c.
func (c Collection) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(c))
	for _, e := range c {
		ids[e.ID] = struct{}{}
	}
	return ids
}

// Without returns a copy of c with the entry id removed and whether it was
// present.
func (c Collection) Without(id string) (Collection, bool) {
	out := make(Collection, 0, len(c))
	removed := false
	for _, e := range c {
		if e.ID == id {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

// SortNewestFirst orders c by timestamp, most recent first. Entries with
// equal timestamps keep their relative order.
func (c Collection) SortNewestFirst() {
	slices.SortStableFunc(c, func(a, b Entry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
