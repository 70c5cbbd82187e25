package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	ContextURL         = "https://www.w3.org/ns/activitystreams"
	SecurityContextURL = "https://w3id.org/security/v1"
	PublicVisibility   = "https://www.w3.org/ns/activitystreams#Public"
	ContentType        = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// AcceptHeaders lists the media types tried, in order, when fetching remote objects.
var AcceptHeaders = []string{
	`application/ld+json; profile="https://w3.org/ns/activitystreams"`,
	`application/ld+json;profile="https://w3.org/ns/activitystreams"`,
	"application/activity+json",
	"application/ld+json",
}

// Context is the JSON-LD context attached to every outgoing document.
func Context() []interface{} {
	return []interface{}{
		ContextURL,
		SecurityContextURL,
		map[string]interface{}{
			"Hashtag":                   "as:Hashtag",
			"sensitive":                 "as:sensitive",
			"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
			"license":                   "https://schema.org/license",
		},
	}
}

// Id identifies any federated object. Two ids are equal iff their strings are.
type Id string

func (id Id) String() string { return string(id) }

// Host returns the authority part of the id, or "" when it does not parse.
func (id Id) Host() string {
	u, err := url.Parse(string(id))
	if err != nil {
		return ""
	}
	return u.Host
}

// UnmarshalJSON accepts both a bare string and an embedded object carrying "id".
func (id *Id) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Id(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("id is neither a string nor an object: %w", err)
	}
	*id = Id(obj.ID)
	return nil
}

// Audience is a to/cc/attributedTo list; a single string is accepted too.
type Audience []Id

func (a *Audience) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}
	if b[0] != '[' {
		var id Id
		if err := id.UnmarshalJSON(b); err != nil {
			return err
		}
		*a = Audience{id}
		return nil
	}
	var ids []Id
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*a = ids
	return nil
}

func (a Audience) Contains(id Id) bool {
	for _, x := range a {
		if x == id {
			return true
		}
	}
	return false
}

func (a Audience) Strings() []string {
	out := make([]string, 0, len(a))
	for _, id := range a {
		out = append(out, string(id))
	}
	return out
}

type Kind string

const (
	KindCreate   Kind = "Create"
	KindUpdate   Kind = "Update"
	KindDelete   Kind = "Delete"
	KindFollow   Kind = "Follow"
	KindUndo     Kind = "Undo"
	KindLike     Kind = "Like"
	KindAnnounce Kind = "Announce"
	KindAccept   Kind = "Accept"
)

// ObjectKind is the type of an activity's object. ObjectLink means the
// object was given as a bare id.
type ObjectKind string

const (
	ObjectLink         ObjectKind = ""
	ObjectArticle      ObjectKind = "Article"
	ObjectNote         ObjectKind = "Note"
	ObjectTombstone    ObjectKind = "Tombstone"
	ObjectPerson       ObjectKind = "Person"
	ObjectService      ObjectKind = "Service"
	ObjectApplication  ObjectKind = "Application"
	ObjectGroup        ObjectKind = "Group"
	ObjectOrganization ObjectKind = "Organization"
	ObjectFollow       ObjectKind = "Follow"
	ObjectLike         ObjectKind = "Like"
	ObjectAnnounce     ObjectKind = "Announce"
)

// Activity is an incoming or outgoing ActivityPub activity. Object keeps
// its raw JSON so handlers decode it into the shape they expect.
type Activity struct {
	Context   interface{}     `json:"@context,omitempty"`
	ID        Id              `json:"id"`
	Type      Kind            `json:"type"`
	Actor     Id              `json:"actor"`
	Object    json.RawMessage `json:"object"`
	To        Audience        `json:"to,omitempty"`
	CC        Audience        `json:"cc,omitempty"`
	Published string          `json:"published,omitempty"`
}

// ObjectID returns the id of the object, whether it is embedded or a link.
func (a *Activity) ObjectID() Id {
	var id Id
	if err := id.UnmarshalJSON(a.Object); err != nil {
		return ""
	}
	return id
}

// ObjectKind returns the embedded object's type, or ObjectLink for a bare id.
func (a *Activity) ObjectKind() ObjectKind {
	return objectKind(a.Object)
}

// Decode unmarshals the embedded object into v.
func (a *Activity) Decode(v interface{}) error {
	if err := json.Unmarshal(a.Object, v); err != nil {
		return fmt.Errorf("%w: %s object: %v", ErrMalformed, a.Type, err)
	}
	return nil
}

func objectKind(raw json.RawMessage) ObjectKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ObjectLink
	}
	var head struct {
		Type interface{} `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ObjectLink
	}
	switch t := head.Type.(type) {
	case string:
		return ObjectKind(t)
	case []interface{}:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return ObjectKind(s)
			}
		}
	}
	return ObjectLink
}

// ParseActivity decodes an inbox body. The raw map is kept for signature checks.
func ParseActivity(body []byte) (*Activity, map[string]interface{}, error) {
	doc, err := decodeDocument(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var act Activity
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if act.Type == "" || act.Actor == "" || act.ID == "" {
		return nil, nil, fmt.Errorf("%w: activity needs id, type and actor", ErrMalformed)
	}
	if len(act.Object) == 0 {
		return nil, nil, fmt.Errorf("%w: %s without object", ErrMalformed, act.Type)
	}
	return &act, doc, nil
}

// decodeDocument keeps numbers as written so re-serialization hashes the same bytes.
func decodeDocument(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ToDocument converts an outgoing value into a generic JSON map.
func ToDocument(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeDocument(b)
}

type Source struct {
	Content   string `json:"content"`
	MediaType string `json:"mediaType"`
}

type Hashtag struct {
	Type string `json:"type"`
	Href string `json:"href,omitempty"`
	Name string `json:"name"`
}

type Image struct {
	Type         string   `json:"type"`
	URL          string   `json:"url"`
	Content      string   `json:"content,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Sensitive    bool     `json:"sensitive,omitempty"`
	AttributedTo Audience `json:"attributedTo,omitempty"`
}

// Article is a blog post
type Article struct {
	Context      interface{} `json:"@context,omitempty"`
	ID           Id          `json:"id"`
	Type         ObjectKind  `json:"type"`
	Name         string      `json:"name"`
	Summary      string      `json:"summary,omitempty"`
	Content      string      `json:"content"`
	Source       *Source     `json:"source,omitempty"`
	AttributedTo Audience    `json:"attributedTo"`
	Published    string      `json:"published,omitempty"`
	Updated      string      `json:"updated,omitempty"`
	URL          string      `json:"url,omitempty"`
	License      string      `json:"license,omitempty"`
	Icon         *Image      `json:"icon,omitempty"`
	Tag          []Hashtag   `json:"tag,omitempty"`
	To           Audience    `json:"to,omitempty"`
	CC           Audience    `json:"cc,omitempty"`
}

// Note is a comment
type Note struct {
	Context      interface{} `json:"@context,omitempty"`
	ID           Id          `json:"id"`
	Type         ObjectKind  `json:"type"`
	Content      string      `json:"content"`
	Summary      string      `json:"summary,omitempty"`
	Sensitive    bool        `json:"sensitive,omitempty"`
	InReplyTo    Id          `json:"inReplyTo,omitempty"`
	AttributedTo Audience    `json:"attributedTo"`
	Published    string      `json:"published,omitempty"`
	Tag          []Hashtag   `json:"tag,omitempty"`
	To           Audience    `json:"to,omitempty"`
	CC           Audience    `json:"cc,omitempty"`
}

type Tombstone struct {
	ID   Id         `json:"id"`
	Type ObjectKind `json:"type"`
}

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// ActorObject is a Person or Group document
type ActorObject struct {
	Context                   interface{} `json:"@context,omitempty"`
	ID                        Id          `json:"id"`
	Type                      ObjectKind  `json:"type"`
	PreferredUsername         string      `json:"preferredUsername"`
	Name                      string      `json:"name,omitempty"`
	Summary                   string      `json:"summary,omitempty"`
	URL                       string      `json:"url,omitempty"`
	Inbox                     string      `json:"inbox"`
	Outbox                    string      `json:"outbox,omitempty"`
	Followers                 string      `json:"followers,omitempty"`
	Following                 string      `json:"following,omitempty"`
	Endpoints                 *Endpoints  `json:"endpoints,omitempty"`
	PublicKey                 PublicKey   `json:"publicKey"`
	ManuallyApprovesFollowers bool        `json:"manuallyApprovesFollowers"`
}

// IsGroup reports whether the actor is a blog-like collective actor.
func (a *ActorObject) IsGroup() bool {
	return a.Type == ObjectGroup || a.Type == ObjectOrganization
}

// IsPerson reports whether the actor maps to a user.
func (a *ActorObject) IsPerson() bool {
	return a.Type == ObjectPerson || a.Type == ObjectService || a.Type == ObjectApplication
}

// visibility derives the public flag and the addressed audience from to and cc.
func visibility(to, cc Audience) (bool, []string) {
	public := to.Contains(PublicVisibility) || cc.Contains(PublicVisibility)
	if public {
		return true, nil
	}
	audience := append(to.Strings(), cc.Strings()...)
	return false, audience
}
