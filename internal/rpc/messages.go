package rpc

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/studynote/internal/docstore"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrMalformed = errors.New("malformed message")

// Credentials is the SignUp/SignIn request.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) Encode() *structpb.Struct {
	return object(map[string]*structpb.Value{
		"email":    structpb.NewStringValue(c.Email),
		"password": structpb.NewStringValue(c.Password),
	})
}

func DecodeCredentials(s *structpb.Struct) Credentials {
	return Credentials{Email: str(s, "email"), Password: str(s, "password")}
}

// Session is returned by every call that signs a user in.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
}

func (s Session) Encode() *structpb.Struct {
	return object(map[string]*structpb.Value{
		"user_id":       structpb.NewStringValue(s.UserID),
		"email":         structpb.NewStringValue(s.Email),
		"access_token":  structpb.NewStringValue(s.AccessToken),
		"refresh_token": structpb.NewStringValue(s.RefreshToken),
	})
}

func DecodeSession(s *structpb.Struct) (Session, error) {
	out := Session{
		UserID:       str(s, "user_id"),
		Email:        str(s, "email"),
		AccessToken:  str(s, "access_token"),
		RefreshToken: str(s, "refresh_token"),
	}
	if out.UserID == "" || out.AccessToken == "" {
		return Session{}, fmt.Errorf("%w: session without user or token", ErrMalformed)
	}
	return out, nil
}

// RefreshTokenRequest carries a refresh token for RefreshToken and SignOut.
func RefreshTokenRequest(token string) *structpb.Struct {
	return object(map[string]*structpb.Value{"refresh_token": structpb.NewStringValue(token)})
}

func DecodeRefreshToken(s *structpb.Struct) string {
	return str(s, "refresh_token")
}

// DocumentRef addresses a document, with optional fields for writes.
type DocumentRef struct {
	Collection string
	ID         string
	Fields     map[string]any
}

func (r DocumentRef) Encode() (*structpb.Struct, error) {
	m := map[string]*structpb.Value{"collection": structpb.NewStringValue(r.Collection)}
	if r.ID != "" {
		m["id"] = structpb.NewStringValue(r.ID)
	}
	if r.Fields != nil {
		fields, err := docstore.EncodeFields(r.Fields)
		if err != nil {
			return nil, err
		}
		m["fields"] = structpb.NewStructValue(fields)
	}
	return object(m), nil
}

func DecodeDocumentRef(s *structpb.Struct) (DocumentRef, error) {
	ref := DocumentRef{Collection: str(s, "collection"), ID: str(s, "id")}
	if ref.Collection == "" {
		return DocumentRef{}, fmt.Errorf("%w: collection is required", ErrMalformed)
	}
	if raw, ok := s.GetFields()["fields"]; ok {
		fields, err := docstore.DecodeFields(raw.GetStructValue())
		if err != nil {
			return DocumentRef{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ref.Fields = fields
	}
	return ref, nil
}

// Query selects the documents of a collection matching a filter.
type Query struct {
	Collection string
	Filter     docstore.Filter
}

func (q Query) Encode() *structpb.Struct {
	return object(map[string]*structpb.Value{
		"collection": structpb.NewStringValue(q.Collection),
		"filter": structpb.NewStructValue(object(map[string]*structpb.Value{
			"field": structpb.NewStringValue(q.Filter.Field),
			"value": structpb.NewStringValue(q.Filter.Value),
		})),
	})
}

func DecodeQuery(s *structpb.Struct) (Query, error) {
	f := s.GetFields()["filter"].GetStructValue()
	q := Query{
		Collection: str(s, "collection"),
		Filter:     docstore.Filter{Field: str(f, "field"), Value: str(f, "value")},
	}
	if q.Collection == "" || q.Filter.Field == "" {
		return Query{}, fmt.Errorf("%w: collection and filter field are required", ErrMalformed)
	}
	return q, nil
}

// Snapshot is one LiveQuery push: the full current result set.
func EncodeSnapshot(docs []docstore.Document) (*structpb.Struct, error) {
	list, err := docstore.EncodeDocuments(docs)
	if err != nil {
		return nil, err
	}
	return object(map[string]*structpb.Value{"documents": structpb.NewListValue(list)}), nil
}

func DecodeSnapshot(s *structpb.Struct) ([]docstore.Document, error) {
	return docstore.DecodeDocuments(s.GetFields()["documents"].GetListValue())
}

// StringResponse builds a single-key response such as {id} or {url}.
func StringResponse(key, value string) *structpb.Struct {
	return object(map[string]*structpb.Value{key: structpb.NewStringValue(value)})
}

// StringField reads a top-level string from a response.
func StringField(s *structpb.Struct, key string) string {
	return str(s, key)
}

// Empty returns an empty message.
func Empty() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}

func object(m map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: m}
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}
